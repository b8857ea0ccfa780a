package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider is an interface for a cache provider.
// It stores captured HTTP responses in named partitions.
// A partition is an isolated key-value store; partition names embed a
// version string, and bumping the version is the only supported migration
// mechanism (older partitions are dropped wholesale on activation).
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the entry stored under the given key in the given
	// partition, if it exists.
	Get(partition, key string) (Entry, bool, error)
	// Put stores the entry in the partition, overwriting any previous
	// entry with the same key. The partition is created if needed.
	Put(partition string, e Entry) error
	// Delete removes a single entry. Deleting a missing entry is not an error.
	Delete(partition, key string) error
	// Clear removes every entry from the partition.
	// The partition itself remains and stays openable.
	Clear(partition string) error
	// Drop removes the partition and all of its entries.
	Drop(partition string) error
	// Partitions returns the names of all partitions present in storage,
	// including empty ones.
	Partitions() ([]string, error)
	// Keys calls cb for every entry in the partition with its key and
	// stored response status. It enables sweeps over large partitions
	// without loading response bodies.
	Keys(partition string, cb func(key string, status int))
	// Size returns the total byte length of all entry bodies across all
	// partitions.
	Size() (int64, error)
}

// Entry is a captured HTTP response stored under a request key.
type Entry struct {
	Key      string
	Status   int
	BodySize int64
	Bytes    []byte
	StoredAt time.Time
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		partition TEXT,
		key TEXT,
		status INTEGER,
		body_size INTEGER,
		stored_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (partition, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS partitions (name TEXT PRIMARY KEY)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Get(partition, key string) (Entry, bool, error) {
	entry := Entry{Key: key}
	var storedAt int64
	err := s.db.QueryRow(
		"SELECT status, body_size, stored_at, bytes FROM cache WHERE partition = ? AND key = ?",
		partition, key,
	).Scan(&entry.Status, &entry.BodySize, &storedAt, &entry.Bytes)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.StoredAt = time.Unix(storedAt, 0)
	return entry, true, nil
}

func (s SQLiteCache) Put(partition string, e Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("INSERT OR IGNORE INTO partitions (name) VALUES (?)", partition); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache
		(partition, key, status, body_size, stored_at, bytes) VALUES (?, ?, ?, ?, ?, ?)`,
		partition, e.Key, e.Status, e.BodySize, e.StoredAt.Unix(), e.Bytes)
	return err
}

func (s SQLiteCache) Delete(partition, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE partition = ? AND key = ?", partition, key)
	return err
}

func (s SQLiteCache) Clear(partition string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE partition = ?", partition)
	return err
}

func (s SQLiteCache) Drop(partition string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("DELETE FROM cache WHERE partition = ?", partition); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM partitions WHERE name = ?", partition)
	return err
}

func (s SQLiteCache) Partitions() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM partitions ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (s SQLiteCache) Keys(partition string, cb func(key string, status int)) {
	rows, err := s.db.Query("SELECT key, status FROM cache WHERE partition = ?", partition)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var status int
		if err := rows.Scan(&key, &status); err != nil {
			return
		}
		cb(key, status)
	}
}

func (s SQLiteCache) Size() (int64, error) {
	var size int64
	err := s.db.QueryRow("SELECT COALESCE(SUM(body_size), 0) FROM cache").Scan(&size)
	return size, err
}
