package main

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/apibillme/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Store persists upstream responses and admin users in sqlite.
type Store struct {
	db        *sql.DB
	log       *logrus.Entry
	userCache cache.Cache
}

const reqTable string = `
  CREATE TABLE IF NOT EXISTS reqdata (
      hash TEXT PRIMARY KEY,
      httpdata BLOB NOT NULL,
      expiry INT NOT NULL
  )
`

const userTable string = `
  CREATE TABLE IF NOT EXISTS users (
      user TEXT PRIMARY KEY,
      hash TEXT NOT NULL,
      level INT NOT NULL
  )
`

const dbFile string = "data/cache.db"

func NewStore(cfg *Config) (*Store, error) {
	logger := componentLogger("store")

	filename := dbFile
	if cfg.Cache.Database != "" {
		filename = cfg.Cache.Database
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{reqTable, userTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	logger.WithField("file", filename).Info("database ready")
	return &Store{
		db:        db,
		log:       logger,
		userCache: cache.New(256, cache.WithTTL(1*time.Hour)),
	}, nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

func (store *Store) DeleteBefore(expiry int64) error {
	res, err := store.db.Exec("DELETE FROM reqdata WHERE expiry < ?", expiry)
	if err != nil {
		return fmt.Errorf("purge expired responses: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		store.log.WithField("rows", n).Info("purged expired responses")
	}
	return nil
}

func (store *Store) DeleteAllResponses() error {
	if _, err := store.db.Exec("DELETE FROM reqdata"); err != nil {
		return fmt.Errorf("purge responses: %w", err)
	}
	return nil
}

// GetResponse returns a stored response dump that has not expired at now.
func (store *Store) GetResponse(hash string, now int64) ([]byte, bool) {
	row := store.db.QueryRow("SELECT httpdata FROM reqdata WHERE hash = ? AND expiry >= ?", hash, now)
	var data []byte
	err := row.Scan(&data)
	if err == nil {
		return data, true
	}
	if !errors.Is(err, sql.ErrNoRows) {
		store.log.WithError(err).Warn("read cached response")
	}
	return nil, false
}

func (store *Store) StoreResponse(hash string, res []byte, expiry int64) error {
	_, err := store.db.Exec("INSERT OR REPLACE INTO reqdata (hash, httpdata, expiry) VALUES (?,?,?)",
		hash,
		res,
		expiry,
	)
	if err != nil {
		return fmt.Errorf("store response: %w", err)
	}
	return nil
}

func (store *Store) CountResponses() (int, error) {
	var n int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM reqdata").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (store *Store) AddUser(user string, pass string, level int) error {
	if user == "" || pass == "" {
		return errors.New("user and password are required")
	}
	hash, err := argon2id.CreateHash(pass, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = store.db.Exec("INSERT OR REPLACE INTO users (user, hash, level) VALUES (?,?,?)", user, hash, level)
	if err != nil {
		return fmt.Errorf("add user %s: %w", user, err)
	}
	return nil
}

// verifiedUser remembers a password that already passed argon2id against a
// particular stored hash. Only a digest of the password is kept.
type verifiedUser struct {
	hash   string
	digest [32]byte
}

// TestUser checks a password against the users table. The stored hash is read
// on every call, so a password changed by useradd takes effect immediately;
// the cache only skips the argon2id comparison for a hash already verified.
func (store *Store) TestUser(user string, pass string) bool {
	var hash string
	err := store.db.QueryRow("SELECT hash FROM users WHERE user = ?", user).Scan(&hash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			store.log.WithError(err).Warn("look up user")
		}
		store.userCache.Del(user)
		return false
	}

	digest := blake3.Sum256([]byte(pass))
	if v, ok := store.userCache.Get(user); ok {
		seen := v.(verifiedUser)
		if seen.hash == hash && 1 == subtle.ConstantTimeCompare(seen.digest[:], digest[:]) {
			return true
		}
	}
	match, err := argon2id.ComparePasswordAndHash(pass, hash)
	if err != nil {
		store.log.WithError(err).Warn("compare password hashes")
		return false
	}
	if match {
		store.userCache.Set(user, verifiedUser{hash: hash, digest: digest})
	}
	return match
}
