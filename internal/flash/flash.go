package flash

import (
	"errors"
	"fmt"
)

var (
	ErrRunningPartition = errors.New("partition is the running partition")
	ErrPartitionBusy    = errors.New("partition already open for writing")
	ErrUnknownPartition = errors.New("unknown partition")
	ErrInvalidHandle    = errors.New("invalid partition handle")
	ErrEmptyImage       = errors.New("image is empty")
	ErrNoImage          = errors.New("partition holds no committed image")
	ErrImageTooLarge    = errors.New("image exceeds partition capacity")
)

// Partition identifies one firmware slot.
type Partition struct {
	Label string `yaml:"label"`
	Slot  int    `yaml:"slot"`
}

func (p Partition) String() string {
	return fmt.Sprintf("%s(slot %d)", p.Label, p.Slot)
}

// Handle is an opaque reference to a partition open for writing.
type Handle uint32

// Store is the partition storage of the device. A handle returned by Begin
// must be finished with End or Abort; End validates and commits the image
// but does not change the boot selection.
type Store interface {
	Running() Partition
	Boot() Partition
	NextUpdate() (Partition, error)
	Begin(p Partition, sizeHint int64) (Handle, error)
	Write(h Handle, b []byte) error
	End(h Handle) error
	Abort(h Handle) error
	SetBootPartition(p Partition) error
}
