// Package journal records the outcome of every batch so callers can look a
// batch up after the fact. Credentials and extracted text are never stored.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("batches")

// ErrNotFound is returned for unknown batch ids.
var ErrNotFound = errors.New("batch not found")

// Outcome statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record describes one finished batch.
type Record struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	Files      int       `json:"files"`
	Status     string    `json:"status"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	Skipped    int       `json:"skipped,omitempty"`
	TextLength int       `json:"textLength,omitempty"`
	Bucket     string    `json:"bucket,omitempty"`
	URLs       []string  `json:"urls,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Store persists batch records.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Close() error
}

// BoltStore keeps records in a single bbolt bucket keyed by batch id.
type BoltStore struct {
	db *bolt.DB
}

// Open creates or opens the journal at path.
func Open(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("journal record without id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// Prune deletes records that finished before cutoff and returns how many
// were removed.
func (s *BoltStore) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.FinishedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Nop discards records. Used when no journal path is configured.
type Nop struct{}

func (Nop) Put(context.Context, Record) error { return nil }

func (Nop) Get(context.Context, string) (Record, error) { return Record{}, ErrNotFound }

func (Nop) Close() error { return nil }
