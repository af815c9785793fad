package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// BoltOptions configures a BoltStore.
type BoltOptions struct {
	// Path is the database file. It is created if missing.
	Path string

	// Bucket is the bucket holding entries. Default: "results".
	Bucket string

	// OpenTimeout bounds waiting for the file lock. Default: 1 second.
	OpenTimeout time.Duration
}

// BoltStore is a single-host Store persisted to a bbolt file.
//
// Each value is stored as an 8-byte big-endian expiry (Unix nanoseconds)
// followed by the raw bytes. Keys are stored as 'k' plus the key, or as 'h'
// plus its SHA-256 when that would exceed bbolt's key limit, so the empty
// key and very long keys are held too.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

const boltHeaderLen = 8

func boltKey(key string) []byte {
	if len(key) < bolt.MaxKeySize {
		return append([]byte{'k'}, key...)
	}
	sum := sha256.Sum256([]byte(key))
	return append([]byte{'h'}, sum[:]...)
}

// OpenBoltStore opens or creates the database at opts.Path.
func OpenBoltStore(opts BoltOptions) (*BoltStore, error) {
	if opts.Path == "" {
		return nil, errors.New("cache: bolt path is required")
	}
	if opts.Bucket == "" {
		opts.Bucket = "results"
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = time.Second
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: opts.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("cache: open bolt %s: %w", opts.Path, err)
	}

	bucket := []byte(opts.Bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}

	return &BoltStore{db: db, bucket: bucket, now: time.Now}, nil
}

// Get returns the value if present and unexpired. Expired entries are
// removed in a follow-up write transaction.
func (s *BoltStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		out     []byte
		stale   bool
		present bool
		bk      = boltKey(key)
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(bk)
		if v == nil {
			return nil
		}
		if len(v) < boltHeaderLen {
			stale = true
			return nil
		}
		if expired(decodeExpiry(v), s.now()) {
			stale = true
			return nil
		}
		present = true
		out = append([]byte(nil), v[boltHeaderLen:]...)
		return nil
	})
	if err != nil {
		return nil, false, s.wrap("get", err)
	}

	if stale {
		_ = s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(s.bucket)
			v := b.Get(bk)
			if v != nil && (len(v) < boltHeaderLen || expired(decodeExpiry(v), s.now())) {
				return b.Delete(bk)
			}
			return nil
		})
	}

	return out, present, nil
}

// Set writes value with its expiry in a single transaction. A ttl <= 0
// stores nothing.
func (s *BoltStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	buf := make([]byte, boltHeaderLen+len(value))
	binary.BigEndian.PutUint64(buf[:boltHeaderLen], uint64(s.now().Add(ttl).UnixNano()))
	copy(buf[boltHeaderLen:], value)

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(boltKey(key), buf)
	})
	if err != nil {
		return s.wrap("set", err)
	}
	return nil
}

// Delete removes a value. Idempotent - no error on miss.
func (s *BoltStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(boltKey(key))
	})
	if err != nil {
		return s.wrap("delete", err)
	}
	return nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) wrap(op string, err error) error {
	if errors.Is(err, berrors.ErrDatabaseNotOpen) {
		return fmt.Errorf("cache: bolt %s: %w", op, ErrStoreClosed)
	}
	return fmt.Errorf("cache: bolt %s: %w", op, err)
}

func decodeExpiry(v []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(v[:boltHeaderLen])))
}

var _ Store = (*BoltStore)(nil)
