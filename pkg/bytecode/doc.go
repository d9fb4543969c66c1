// Package bytecode defines the instruction catalog and the instruction
// sequence container produced by the compiler and executed by the VM.
//
// # Architecture Overview
//
//   - Opcodes: a closed catalog of stack-machine instructions. Each entry
//     declares how many operand-stack values it reads and writes, whether it
//     branches, whether it ends a straight-line path and whether it has side
//     effects.
//
//   - InstructionSequence: one lexical scope's stream (top level, method,
//     block, class, module or singleton class body) together with its local
//     table, argument shape and catch table. Sequences live in a Unit arena;
//     a sequence owns its children by SeqID and names its lexical parent by
//     SeqID for local-variable depth resolution.
//
//   - Labels: branch targets are allocated unbound, bound once with Push and
//     resolved to positions by Finalize. A label that is referenced but never
//     bound is a compile-time defect.
//
//   - CallData: call-site descriptors (method name, argument count, flags,
//     keyword names) interned in a CallDataTable so equal call sites share
//     one instance.
//
// # Finalize
//
// Finalize is the only transition from mutable to frozen. It optionally runs
// a peephole pass, resolves labels and then re-derives the operand stack
// depth of every reachable instruction from the catalog's read/write
// arities. The pass rejects underflow, merge points reached with different
// depths and leave instructions reached with anything other than exactly one
// value on the stack. Children finalize before their parent, so a frozen
// sequence only ever references frozen sequences.
package bytecode
