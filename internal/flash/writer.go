package flash

import (
	"errors"
	"fmt"
)

var (
	ErrWriterClosed = errors.New("writer already committed or aborted")
	ErrOverflow     = errors.New("write exceeds declared image length")
	ErrIncomplete   = errors.New("image shorter than declared length")
)

// Writer streams a single image of known length into a partition.
type Writer struct {
	store    Store
	part     Partition
	handle   Handle
	declared int64
	written  int64
	closed   bool
}

// Begin opens p for an image of exactly declared bytes.
func Begin(store Store, p Partition, declared int64) (*Writer, error) {
	h, err := store.Begin(p, declared)
	if err != nil {
		return nil, err
	}

	return &Writer{
		store:    store,
		part:     p,
		handle:   h,
		declared: declared,
	}, nil
}

// Write appends b to the image. A write that would pass the declared length
// is refused whole and nothing is written.
func (w *Writer) Write(b []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}

	if len(b) == 0 {
		return 0, nil
	}

	if w.written+int64(len(b)) > w.declared {
		return 0, fmt.Errorf("%w: %d + %d > %d", ErrOverflow, w.written, len(b), w.declared)
	}

	if err := w.store.Write(w.handle, b); err != nil {
		return 0, err
	}

	w.written += int64(len(b))

	return len(b), nil
}

// Commit finalizes the image. It fails without touching the store unless
// exactly the declared length was written.
func (w *Writer) Commit() error {
	if w.closed {
		return ErrWriterClosed
	}

	if w.written != w.declared {
		return fmt.Errorf("%w: %d of %d", ErrIncomplete, w.written, w.declared)
	}

	w.closed = true

	return w.store.End(w.handle)
}

// Abort discards the image. It is a no-op after Commit or Abort.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}

	w.closed = true

	return w.store.Abort(w.handle)
}

func (w *Writer) Written() int64 {
	return w.written
}

func (w *Writer) Remaining() int64 {
	return w.declared - w.written
}

func (w *Writer) Partition() Partition {
	return w.part
}
