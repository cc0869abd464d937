package ingest

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketChunks = []byte("chunks")

// BoltIndex is the bbolt-backed DedupIndex consulted before embedding
// (§4.3 step 4): one key per known chunk_id, value unused.
type BoltIndex struct {
	db *bolt.DB
}

// NewBoltIndex opens (creating if absent) a chunk_id index database
// rooted in a project's per-database state directory.
func NewBoltIndex(dir, databaseName string) (*BoltIndex, error) {
	dbPath := filepath.Join(dir, databaseName+".dedup.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open dedup index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create chunks bucket: %w", err)
	}

	return &BoltIndex{db: db}, nil
}

// Close closes the underlying database.
func (b *BoltIndex) Close() error {
	return b.db.Close()
}

// Exists reports whether chunkID has already been marked.
func (b *BoltIndex) Exists(chunkID string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketChunks)
		found = bucket.Get([]byte(chunkID)) != nil
		return nil
	})
	return found, err
}

// Mark records chunkID as stored.
func (b *BoltIndex) Mark(chunkID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketChunks)
		return bucket.Put([]byte(chunkID), []byte{1})
	})
}
