package ota_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/otad/internal/flash"
	"github.com/NamanBalaji/otad/internal/ota"
	"github.com/NamanBalaji/otad/internal/repository"
	"github.com/NamanBalaji/otad/internal/transport"
)

// scriptedSocket replays recv segments in order. A nil segment is a recv
// timeout; running out of segments is a closed connection.
type scriptedSocket struct {
	mu         sync.Mutex
	segments   [][]byte
	sent       bytes.Buffer
	sendLimit  int
	connectErr error
	recvErr    error
	destroyed  int
}

func (s *scriptedSocket) Connect(context.Context, net.IP, int, time.Duration) error {
	return s.connectErr
}

func (s *scriptedSocket) ConnectByName(context.Context, string, int, time.Duration) error {
	return s.connectErr
}

func (s *scriptedSocket) Send(p []byte, _ time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendLimit > 0 && len(p) > s.sendLimit {
		p = p[:s.sendLimit]
	}

	return s.sent.Write(p)
}

func (s *scriptedSocket) Recv(p []byte, _ time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments) == 0 {
		if s.recvErr != nil {
			return 0, s.recvErr
		}

		return 0, io.EOF
	}

	seg := s.segments[0]
	if seg == nil {
		s.segments = s.segments[1:]
		return 0, nil
	}

	n := copy(p, seg)
	s.segments[0] = seg[n:]

	if len(s.segments[0]) == 0 {
		s.segments = s.segments[1:]
	}

	return n, nil
}

func (s *scriptedSocket) Disconnect() error {
	return nil
}

func (s *scriptedSocket) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.destroyed++

	return nil
}

type socketFactory struct {
	socket *scriptedSocket
	err    error
}

func (f socketFactory) Create() (transport.Socket, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.socket, nil
}

type staticResolver struct {
	ip  net.IP
	err error
}

func (r staticResolver) Resolve(context.Context, string, time.Duration) (net.IP, error) {
	return r.ip, r.err
}

// countingStore counts partition operations and can fail writes, commits
// and boot switches.
type countingStore struct {
	flash.Store
	begins    int
	writes    int
	ends      int
	boots     int
	failWrite error
	failEnd   error
	failBoot  error
}

func (s *countingStore) Begin(p flash.Partition, hint int64) (flash.Handle, error) {
	s.begins++
	return s.Store.Begin(p, hint)
}

func (s *countingStore) Write(h flash.Handle, b []byte) error {
	s.writes++
	if s.failWrite != nil {
		return s.failWrite
	}

	return s.Store.Write(h, b)
}

func (s *countingStore) End(h flash.Handle) error {
	s.ends++
	if s.failEnd != nil {
		return s.failEnd
	}

	return s.Store.End(h)
}

func (s *countingStore) SetBootPartition(p flash.Partition) error {
	s.boots++
	if s.failBoot != nil {
		return s.failBoot
	}

	return s.Store.SetBootPartition(p)
}

type result struct {
	code    int32
	msg     string
	version string
}

type recordingAcker struct {
	mu        sync.Mutex
	progress  [][2]int64
	results   []result
	resultErr error
}

func (a *recordingAcker) AckProgress(_ int32, _ string, downloaded, total int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.progress = append(a.progress, [2]int64{downloaded, total})

	return nil
}

func (a *recordingAcker) AckResult(code int32, msg, version string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, result{code: code, msg: msg, version: version})

	return a.resultErr
}

type countingRestarter struct {
	restarts int
}

func (r *countingRestarter) Restart() error {
	r.restarts++
	return nil
}

var errInjected = errors.New("injected")

// segments splits data into reads of at most size bytes.
func segments(data []byte, size int) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		n := min(size, len(data))
		out = append(out, data[:n])
		data = data[n:]
	}

	return out
}

func firmware(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i*7 + i/256)
	}

	return b
}

type harness struct {
	store     *countingStore
	files     *flash.FileStore
	acker     *recordingAcker
	journal   *repository.BboltRepository
	restarter *countingRestarter
	socket    *scriptedSocket
	deps      ota.Deps
}

func newHarness(t *testing.T, sock *scriptedSocket) *harness {
	t.Helper()

	files, err := flash.OpenFileStore(filepath.Join(t.TempDir(), "flash"))
	require.NoError(t, err)

	journal, err := repository.NewBboltRepository(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	h := &harness{
		store:     &countingStore{Store: files},
		files:     files,
		acker:     &recordingAcker{},
		journal:   journal,
		restarter: &countingRestarter{},
		socket:    sock,
	}

	h.deps = ota.Deps{
		Resolver:  staticResolver{ip: net.IPv4(127, 0, 0, 1)},
		Sockets:   socketFactory{socket: sock},
		Store:     h.store,
		Acker:     h.acker,
		Journal:   journal,
		Restarter: h.restarter,
	}

	return h
}

func (h *harness) run(t *testing.T, offer ota.Offer, opts ...ota.ConfigOption) ota.Outcome {
	t.Helper()

	opts = append([]ota.ConfigOption{ota.WithRestartDelay(time.Millisecond)}, opts...)

	return ota.New(h.deps, opts...).Run(context.Background(), offer)
}

func offerFor(url string) ota.Offer {
	return ota.Offer{
		TargetVersion: "2.1.0",
		Checksum:      "d41d8cd98f00b204e9800998ecf8427e",
		URL:           url,
	}
}
