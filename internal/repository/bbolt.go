package repository

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

const (
	attemptsBucket = "attempts"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

var (
	// ErrAttemptNotFound is returned when an attempt cannot be found
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrEmptyID         = errors.New("attempt ID cannot be empty")
)

// BboltRepository stores attempt records in a bbolt file.
type BboltRepository struct {
	db *bbolt.DB
}

var _ Repository = (*BboltRepository)(nil)

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(attemptsBucket))
		if err != nil {
			return fmt.Errorf("failed to create attempts bucket: %w", err)
		}

		metadata, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		err = metadata.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion)))
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists a record, replacing any earlier version of it.
func (r *BboltRepository) Save(record *Record) error {
	if record == nil {
		return errors.New("cannot save nil record")
	}

	if record.ID == uuid.Nil {
		return ErrEmptyID
	}

	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(attemptsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", attemptsBucket)
		}

		err := bucket.Put([]byte(record.ID.String()), data)
		if err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		return nil
	})
}

// Find retrieves a record by ID
func (r *BboltRepository) Find(id uuid.UUID) (*Record, error) {
	if id == uuid.Nil {
		return nil, ErrEmptyID
	}

	var record *Record

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(attemptsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", attemptsBucket)
		}

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return ErrAttemptNotFound
		}

		var err error
		record, err = decode(data)

		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// FindAll returns every record, oldest first.
func (r *BboltRepository) FindAll() ([]*Record, error) {
	return r.filter(func(*Record) bool { return true })
}

// FindPending returns committed attempts whose result was never delivered.
func (r *BboltRepository) FindPending() ([]*Record, error) {
	return r.filter((*Record).Pending)
}

func (r *BboltRepository) filter(keep func(*Record) bool) ([]*Record, error) {
	var records []*Record

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(attemptsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", attemptsBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			record, err := decode(v)
			if err != nil {
				return err
			}

			if keep(record) {
				records = append(records, record)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

// MarkReported flags the result of an attempt as delivered.
func (r *BboltRepository) MarkReported(id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrEmptyID
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(attemptsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", attemptsBucket)
		}

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return ErrAttemptNotFound
		}

		record, err := decode(data)
		if err != nil {
			return err
		}

		record.ResultReported = true
		record.UpdatedAt = time.Now()

		data, err = msgpack.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		return bucket.Put([]byte(id.String()), data)
	})
}

// Delete removes a record
func (r *BboltRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrEmptyID
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(attemptsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", attemptsBucket)
		}

		if bucket.Get([]byte(id.String())) == nil {
			return ErrAttemptNotFound
		}

		return bucket.Delete([]byte(id.String()))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}

func decode(data []byte) (*Record, error) {
	record := &Record{}

	if err := msgpack.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return record, nil
}
