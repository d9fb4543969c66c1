package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/rbvm/pkg/bytecode"
)

// Cache keeps compiled units in a SQLite database keyed by source digest.
type Cache struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
	mu   sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, ErrCache.Wrap(err, "creating cache directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ErrCache.Wrap(err, "opening database")
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, ErrCache.Wrap(err, "setting busy timeout")
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sequences (
		key TEXT PRIMARY KEY,
		hash BLOB NOT NULL,
		body BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, ErrCache.Wrap(err, "creating table")
	}

	return &Cache{db: db, path: path, log: commonlog.GetLogger("rbvm.store")}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key derives the cache key for source from file compiled under opts.
func Key(file string, source []byte, opts bytecode.Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d frozen=%t unify=%t peephole=%t specialized=%t\n%s\n", WireVersion,
		opts.FrozenStringLiteral, opts.OperandsUnification, opts.PeepholeOptimization, opts.SpecializedInstruction, file)
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// Put stores unit under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, unit *bytecode.Unit) error {
	body, err := Marshal(unit)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(body)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sequences (key, hash, body) VALUES (?, ?, ?)",
		key, sum[:], body,
	)
	if err != nil {
		return ErrCache.Wrap(err, "saving %s", key)
	}
	c.log.Debugf("stored %s (%d bytes)", key, len(body))
	return nil
}

// Get loads the unit stored under key. The boolean is false when the key
// is absent. A stored body whose digest no longer matches is an error.
func (c *Cache) Get(ctx context.Context, key string) (*bytecode.Unit, bool, error) {
	var sum, body []byte
	err := c.db.QueryRowContext(ctx, "SELECT hash, body FROM sequences WHERE key = ?", key).Scan(&sum, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, ErrCache.Wrap(err, "querying %s", key)
	}

	got := sha256.Sum256(body)
	if !bytes.Equal(got[:], sum) {
		return nil, false, ErrCorrupt.New("digest mismatch for %s", key)
	}

	unit, err := Unmarshal(body)
	if err != nil {
		return nil, false, err
	}
	c.log.Debugf("loaded %s", key)
	return unit, true, nil
}

// Delete removes the entry under key, if any.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, "DELETE FROM sequences WHERE key = ?", key); err != nil {
		return ErrCache.Wrap(err, "deleting %s", key)
	}
	return nil
}

// Len returns the number of stored units.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sequences").Scan(&n); err != nil {
		return 0, ErrCache.Wrap(err, "counting entries")
	}
	return n, nil
}
