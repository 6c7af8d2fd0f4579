package hostbuild

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Cache is an advisory (path, size, mod_time) -> md5 store backed by
// sqlite. A missing or corrupt cache only costs rehashing time; it never
// participates in the manifest's wire bytes or its HMAC input.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open build cache: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS file_hashes (
	path TEXT NOT NULL,
	size INTEGER NOT NULL,
	mod_time INTEGER NOT NULL,
	md5 TEXT NOT NULL,
	PRIMARY KEY (path, size, mod_time)
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create build cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Lookup returns the cached MD5 for (path, size, modTime), if present.
func (c *Cache) Lookup(path string, size, modTime int64) (md5 string, ok bool) {
	if c == nil || c.db == nil {
		return "", false
	}
	row := c.db.QueryRow(`SELECT md5 FROM file_hashes WHERE path = ? AND size = ? AND mod_time = ?`, path, size, modTime)
	if err := row.Scan(&md5); err != nil {
		return "", false
	}
	return md5, true
}

// Put records the MD5 for (path, size, modTime), replacing any existing
// row for that path (a file's size or mtime changing invalidates the old
// cache key automatically, since it's part of the primary key).
func (c *Cache) Put(path string, size, modTime int64, md5 string) error {
	if c == nil || c.db == nil {
		return nil
	}
	_, err := c.db.Exec(`DELETE FROM file_hashes WHERE path = ?`, path)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`INSERT INTO file_hashes (path, size, mod_time, md5) VALUES (?, ?, ?, ?)`, path, size, modTime, md5)
	return err
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
