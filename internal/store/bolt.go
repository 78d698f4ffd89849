// ABOUTME: bbolt implementation of BlobStore for single-file embedded persistence
// ABOUTME: Stores every blob in one bucket keyed by the snapshot key

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBoltBucket = "snapshots"

// BoltBlobStore implements BlobStore on top of a bbolt database file.
type BoltBlobStore struct {
	db     *bolt.DB
	bucket []byte
	logger *slog.Logger
}

// NewBoltBlobStore opens the bbolt file at path and ensures the bucket exists.
// An empty bucket name selects "snapshots".
func NewBoltBlobStore(path, bucket string) (*BoltBlobStore, error) {
	if bucket == "" {
		bucket = defaultBoltBucket
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	logger := slog.Default().With("component", "store", "backend", "bolt")
	logger.Info("bolt store initialized", "path", path, "bucket", bucket)

	return &BoltBlobStore{
		db:     db,
		bucket: []byte(bucket),
		logger: logger,
	}, nil
}

// Get returns a copy of the blob under key, or ErrNotFound.
func (s *BoltBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores data under key, replacing any previous value.
func (s *BoltBlobStore) Put(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.logger.Debug("saved blob", "key", key, "size", len(data))
	return nil
}

// Delete removes the blob under key. Deleting a missing key is not an error.
func (s *BoltBlobStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Close closes the bolt database.
func (s *BoltBlobStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
