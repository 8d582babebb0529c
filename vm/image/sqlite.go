package image

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/orca/vm"
)

var log = commonlog.GetLogger("orca.image")

// SQLiteCache is a Cache persisted in a SQLite database, so compiled
// programs survive between runs of the CLI and the server.
type SQLiteCache struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLiteCache opens or creates the cache database at path. Use
// ":memory:" for a private in-memory database.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("image: opening cache: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("image: setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		key BLOB PRIMARY KEY,
		image BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("image: creating table: %w", err)
	}
	log.Debugf("opened program cache %s", path)
	return &SQLiteCache{db: db}, nil
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Get loads the program stored under k.
func (c *SQLiteCache) Get(k Key) (*vm.Program, error) {
	var data []byte
	err := c.db.QueryRow("SELECT image FROM programs WHERE key = ?", k[:]).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("image: querying cache: %w", err)
	}
	return Unmarshal(data)
}

// Put stores p under k.
func (c *SQLiteCache) Put(k Key, p *vm.Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.Exec("INSERT OR REPLACE INTO programs (key, image) VALUES (?, ?)", k[:], data)
	if err != nil {
		return fmt.Errorf("image: saving program: %w", err)
	}
	return nil
}

// Len returns the number of cached programs.
func (c *SQLiteCache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("image: counting programs: %w", err)
	}
	return n, nil
}
