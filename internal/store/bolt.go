package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucket = []byte("reminder")
	boltKey    = []byte("state")
)

// BoltStore keeps the JSON document under a single key of a bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the bbolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, persistErr(err, "create directory %s", dir)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, persistErr(err, "open bolt store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, persistErr(err, "create bucket")
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Name() string { return "bolt" }

func (s *BoltStore) Load(ctx context.Context) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return errors.New("bucket missing")
		}
		if v := b.Get(boltKey); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Record{}, false, persistErr(err, "read bolt store")
	}
	if data == nil {
		return Record{}, false, nil
	}
	rec, err := UnmarshalRecord(data)
	if err != nil {
		return Record{}, false, persistErr(err, "parse bolt record")
	}
	return rec, true, nil
}

func (s *BoltStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := MarshalRecord(rec)
	if err != nil {
		return persistErr(err, "encode state")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltKey, data)
	})
	return persistErr(err, "write bolt store")
}

func (s *BoltStore) Close() error { return s.db.Close() }
