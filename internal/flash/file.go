package flash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	slotCount     = 2
	otadataFile   = "otadata.yaml"
	imageSuffix   = ".bin"
	partialSuffix = ".part"
)

// otadata is the persisted boot selection.
type otadata struct {
	Boot     int    `yaml:"boot"`
	Sequence uint64 `yaml:"sequence"`
}

type openImage struct {
	part    Partition
	file    *os.File
	written int64
}

// FileStore keeps two partition images in a directory. The running
// partition is the boot partition at the time the store was opened; it is
// never written.
type FileStore struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	running  Partition
	data     otadata
	open     map[Handle]*openImage
	next     Handle
}

type FileStoreOption func(*FileStore)

// WithCapacity limits the size of each partition image.
func WithCapacity(n int64) FileStoreOption {
	return func(fs *FileStore) {
		fs.capacity = n
	}
}

// OpenFileStore opens (or initialises) the partition directory.
func OpenFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create partition directory: %w", err)
	}

	fs := &FileStore{
		dir:  dir,
		open: make(map[Handle]*openImage),
	}

	for _, opt := range opts {
		opt(fs)
	}

	b, err := os.ReadFile(filepath.Join(dir, otadataFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		fs.data = otadata{}
		if err := fs.saveOtadata(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read otadata: %w", err)
	default:
		if err := yaml.Unmarshal(b, &fs.data); err != nil {
			return nil, fmt.Errorf("failed to parse otadata: %w", err)
		}
		if fs.data.Boot < 0 || fs.data.Boot >= slotCount {
			return nil, fmt.Errorf("%w: boot slot %d", ErrUnknownPartition, fs.data.Boot)
		}
	}

	fs.running = partition(fs.data.Boot)

	return fs, nil
}

func partition(slot int) Partition {
	return Partition{Label: fmt.Sprintf("ota_%d", slot), Slot: slot}
}

func (fs *FileStore) Running() Partition {
	return fs.running
}

func (fs *FileStore) Boot() Partition {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return partition(fs.data.Boot)
}

// NextUpdate returns the partition after the running one.
func (fs *FileStore) NextUpdate() (Partition, error) {
	return partition((fs.running.Slot + 1) % slotCount), nil
}

func (fs *FileStore) Begin(p Partition, sizeHint int64) (Handle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.check(p); err != nil {
		return 0, err
	}

	if p == fs.running {
		return 0, fmt.Errorf("%w: %s", ErrRunningPartition, p)
	}

	for _, img := range fs.open {
		if img.part == p {
			return 0, fmt.Errorf("%w: %s", ErrPartitionBusy, p)
		}
	}

	if fs.capacity > 0 && sizeHint > fs.capacity {
		return 0, fmt.Errorf("%w: %d > %d", ErrImageTooLarge, sizeHint, fs.capacity)
	}

	f, err := os.OpenFile(fs.partialPath(p), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open partition %s: %w", p, err)
	}

	fs.next++
	fs.open[fs.next] = &openImage{part: p, file: f}

	return fs.next, nil
}

func (fs *FileStore) Write(h Handle, b []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	img, ok := fs.open[h]
	if !ok {
		return ErrInvalidHandle
	}

	if fs.capacity > 0 && img.written+int64(len(b)) > fs.capacity {
		return fmt.Errorf("%w: %d > %d", ErrImageTooLarge, img.written+int64(len(b)), fs.capacity)
	}

	n, err := img.file.Write(b)
	img.written += int64(n)

	return err
}

// End syncs the image and moves it into place. The handle is released even
// when End fails.
func (fs *FileStore) End(h Handle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	img, ok := fs.open[h]
	if !ok {
		return ErrInvalidHandle
	}

	delete(fs.open, h)

	if err := img.file.Sync(); err != nil {
		img.file.Close()
		return fmt.Errorf("failed to sync partition %s: %w", img.part, err)
	}

	if err := img.file.Close(); err != nil {
		return fmt.Errorf("failed to close partition %s: %w", img.part, err)
	}

	if img.written == 0 {
		_ = os.Remove(fs.partialPath(img.part))
		return fmt.Errorf("%w: %s", ErrEmptyImage, img.part)
	}

	return os.Rename(fs.partialPath(img.part), fs.imagePath(img.part))
}

// Abort releases the handle and discards the partial image.
func (fs *FileStore) Abort(h Handle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	img, ok := fs.open[h]
	if !ok {
		return ErrInvalidHandle
	}

	delete(fs.open, h)
	img.file.Close()

	return os.Remove(fs.partialPath(img.part))
}

func (fs *FileStore) SetBootPartition(p Partition) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.check(p); err != nil {
		return err
	}

	if _, err := os.Stat(fs.imagePath(p)); err != nil {
		if p != fs.running {
			return fmt.Errorf("%w: %s", ErrNoImage, p)
		}
	}

	prev := fs.data
	fs.data.Boot = p.Slot
	fs.data.Sequence++

	if err := fs.saveOtadata(); err != nil {
		fs.data = prev
		return err
	}

	return nil
}

// PartitionInfo describes one slot for status reporting.
type PartitionInfo struct {
	Partition Partition
	Size      int64
	Running   bool
	Boot      bool
}

// Partitions lists every slot with its committed image size.
func (fs *FileStore) Partitions() []PartitionInfo {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	infos := make([]PartitionInfo, 0, slotCount)

	for slot := 0; slot < slotCount; slot++ {
		p := partition(slot)

		var size int64
		if st, err := os.Stat(fs.imagePath(p)); err == nil {
			size = st.Size()
		}

		infos = append(infos, PartitionInfo{
			Partition: p,
			Size:      size,
			Running:   p == fs.running,
			Boot:      slot == fs.data.Boot,
		})
	}

	return infos
}

// ImagePath returns the file holding the committed image of p.
func (fs *FileStore) ImagePath(p Partition) string {
	return fs.imagePath(p)
}

func (fs *FileStore) check(p Partition) error {
	if p.Slot < 0 || p.Slot >= slotCount || p != partition(p.Slot) {
		return fmt.Errorf("%w: %s", ErrUnknownPartition, p)
	}

	return nil
}

func (fs *FileStore) imagePath(p Partition) string {
	return filepath.Join(fs.dir, p.Label+imageSuffix)
}

func (fs *FileStore) partialPath(p Partition) string {
	return filepath.Join(fs.dir, p.Label+imageSuffix+partialSuffix)
}

// saveOtadata writes the boot selection atomically. Callers hold fs.mu or own fs.
func (fs *FileStore) saveOtadata() error {
	b, err := yaml.Marshal(&fs.data)
	if err != nil {
		return fmt.Errorf("failed to encode otadata: %w", err)
	}

	tmp := filepath.Join(fs.dir, otadataFile+".tmp")

	err = os.WriteFile(tmp, b, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write otadata: %w", err)
	}

	err = os.Rename(tmp, filepath.Join(fs.dir, otadataFile))
	if err != nil {
		return fmt.Errorf("failed to replace otadata: %w", err)
	}

	return nil
}
