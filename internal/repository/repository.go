package repository

import (
	"time"

	"github.com/google/uuid"
)

// Phase is how far an attempt got before it was journaled.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseCommitted Phase = "committed"
	PhaseFailed    Phase = "failed"
)

// Record is the journal entry of one download attempt.
type Record struct {
	ID             uuid.UUID `msgpack:"id"`
	TargetVersion  string    `msgpack:"target_version"`
	URL            string    `msgpack:"url"`
	Partition      string    `msgpack:"partition,omitempty"`
	Phase          Phase     `msgpack:"phase"`
	BytesWritten   int64     `msgpack:"bytes_written"`
	TotalBytes     int64     `msgpack:"total_bytes"`
	ErrorKind      string    `msgpack:"error_kind,omitempty"`
	Message        string    `msgpack:"message,omitempty"`
	ResultReported bool      `msgpack:"result_reported"`
	StartedAt      time.Time `msgpack:"started_at"`
	UpdatedAt      time.Time `msgpack:"updated_at"`
}

// Pending reports whether the record holds a committed image whose result
// never reached the cloud.
func (r *Record) Pending() bool {
	return r.Phase == PhaseCommitted && !r.ResultReported
}

type Repository interface {
	Save(record *Record) error
	Find(id uuid.UUID) (*Record, error)
	FindAll() ([]*Record, error)
	FindPending() ([]*Record, error)
	MarkReported(id uuid.UUID) error
	Delete(id uuid.UUID) error
	Close() error
}
