package bytecode

import (
	"strings"
	"sync"
)

// CallFlag describes the shape of a call site.
type CallFlag uint32

const (
	FlagArgsSplat    CallFlag = 1 << iota // Positional arguments arrive as one array
	FlagArgsBlockArg                      // A &block argument sits above the arguments
	FlagFCall                             // Implicit receiver: private methods are callable
	FlagVCall                             // Bare identifier with no arguments or parens
	FlagArgsSimple                        // No splat, keywords or block argument
	FlagKwArg                             // The last len(KwArgs) arguments are keywords
	FlagSuper                             // super(...)
	FlagZSuper                            // bare super forwarding the current arguments
	FlagSafeNav                           // receiver&.name
)

var callFlagNames = []string{
	"ARGS_SPLAT", "ARGS_BLOCKARG", "FCALL", "VCALL", "ARGS_SIMPLE",
	"KWARG", "SUPER", "ZSUPER", "SAFE_NAV",
}

// String renders the set flags joined by '|'.
func (f CallFlag) String() string {
	var parts []string
	for i, name := range callFlagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// CallData is the interned descriptor of a call site. Argc counts every
// argument slot on the stack, keyword values included, but not the receiver
// or a block argument.
type CallData struct {
	Method string
	Argc   int
	Flags  CallFlag
	KwArgs []string
}

// Has reports whether all of flag is set.
func (cd *CallData) Has(flag CallFlag) bool {
	return cd.Flags&flag == flag
}

// Positional is the number of non-keyword argument slots.
func (cd *CallData) Positional() int {
	return cd.Argc - len(cd.KwArgs)
}

type callKey struct {
	method string
	argc   int
	flags  CallFlag
	kwargs string
}

// CallDataTable interns call descriptors so equal call sites share one
// instance.
//
// The table is append-only. Lookups take a read lock; insertion takes the
// write lock and re-checks, so the table may be shared by compilations
// running on different goroutines.
type CallDataTable struct {
	mu     sync.RWMutex
	byKey  map[callKey]*CallData
	byID   []*CallData
	lookup map[*CallData]int
}

// NewCallDataTable creates a new empty table.
func NewCallDataTable() *CallDataTable {
	return &CallDataTable{
		byKey:  make(map[callKey]*CallData),
		byID:   make([]*CallData, 0, 64),
		lookup: make(map[*CallData]int),
	}
}

// Intern returns the shared descriptor for the given tuple, creating it on
// first use.
func (t *CallDataTable) Intern(method string, argc int, flags CallFlag, kwargs []string) *CallData {
	key := callKey{method: method, argc: argc, flags: flags, kwargs: strings.Join(kwargs, ",")}

	// Fast path: read-only lookup
	t.mu.RLock()
	if cd, ok := t.byKey[key]; ok {
		t.mu.RUnlock()
		return cd
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if cd, ok := t.byKey[key]; ok {
		return cd
	}

	cd := &CallData{Method: method, Argc: argc, Flags: flags}
	if len(kwargs) > 0 {
		cd.KwArgs = append([]string(nil), kwargs...)
	}
	t.byKey[key] = cd
	t.lookup[cd] = len(t.byID)
	t.byID = append(t.byID, cd)
	return cd
}

// ID returns the intern index of cd, or -1 if cd came from another table.
func (t *CallDataTable) ID(cd *CallData) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := t.lookup[cd]; ok {
		return id
	}
	return -1
}

// At returns the descriptor with the given intern index, or nil.
func (t *CallDataTable) At(id int) *CallData {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.byID) {
		return nil
	}
	return t.byID[id]
}

// Len returns the number of interned descriptors.
func (t *CallDataTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
