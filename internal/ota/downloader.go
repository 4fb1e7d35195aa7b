package ota

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/NamanBalaji/otad/internal/errors"
	"github.com/NamanBalaji/otad/internal/flash"
	"github.com/NamanBalaji/otad/internal/logger"
	"github.com/NamanBalaji/otad/internal/progress"
	"github.com/NamanBalaji/otad/internal/repository"
	"github.com/NamanBalaji/otad/internal/status"
	"github.com/NamanBalaji/otad/internal/transport"
	httpPkg "github.com/NamanBalaji/otad/pkg/http"
)

// Journal records attempts so a committed result survives a restart.
type Journal interface {
	Save(record *repository.Record) error
	MarkReported(id uuid.UUID) error
}

// Restarter reboots into the newly selected partition.
type Restarter interface {
	Restart() error
}

// Deps are the collaborators of a Downloader. Journal and Restarter are optional.
type Deps struct {
	Resolver  transport.Resolver
	Sockets   transport.Factory
	Store     flash.Store
	Acker     progress.Acker
	Journal   Journal
	Restarter Restarter
}

// Outcome summarises one attempt.
type Outcome struct {
	ID           uuid.UUID
	State        status.Status
	Partition    flash.Partition
	BytesWritten int64
	Total        int64
	Err          error
}

// Halting reports whether the attempt left the flash subsystem in an unknown state.
func (o Outcome) Halting() bool {
	return errors.IsHalting(o.Err)
}

// Downloader runs download attempts one at a time. It is not safe for
// concurrent Run calls; the engine serialises them.
type Downloader struct {
	deps   Deps
	config *Config
	state  atomic.Int32
	active atomic.Pointer[uuid.UUID]
}

func New(deps Deps, opts ...ConfigOption) *Downloader {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Downloader{
		deps:   deps,
		config: cfg,
	}
}

// State returns the step of the current or last attempt.
func (d *Downloader) State() status.Status {
	return d.state.Load()
}

func (d *Downloader) setState(s status.Status) {
	d.state.Store(s)
}

// Active returns the ID of the attempt in progress. Its journal record is
// owned by the attempt until Run returns.
func (d *Downloader) Active() (uuid.UUID, bool) {
	id := d.active.Load()
	if id == nil {
		return uuid.Nil, false
	}

	return *id, true
}

// Run performs a single attempt for offer. Every attempt that starts ends
// with exactly one result acknowledgement: ok after the boot partition was
// switched, failed otherwise.
func (d *Downloader) Run(ctx context.Context, offer Offer) Outcome {
	a := &attempt{
		d:        d,
		offer:    offer,
		id:       uuid.New(),
		reporter: progress.NewReporter(d.deps.Acker, d.config.Clock, d.config.ProgressInterval),
		started:  d.config.Clock.Now(),
	}

	logger.Infof("Attempt %s: version %s from %s", a.id, offer.TargetVersion, offer.URL)

	d.active.Store(&a.id)
	defer d.active.Store(nil)

	err := a.run(ctx)

	out := Outcome{
		ID:           a.id,
		State:        status.Succeeded,
		Partition:    a.partition,
		BytesWritten: a.written(),
		Total:        a.total,
		Err:          err,
	}

	if err != nil {
		out.State = status.Failed
		d.setState(status.Failed)
		a.fail(err)

		return out
	}

	d.setState(status.Succeeded)

	return out
}

type attempt struct {
	d         *Downloader
	offer     Offer
	id        uuid.UUID
	reporter  *progress.Reporter
	started   time.Time
	socket    transport.Socket
	writer    *flash.Writer
	partition flash.Partition
	total     int64
}

func (a *attempt) run(ctx context.Context) error {
	d := a.d
	cfg := d.config

	d.setState(status.Resolving)

	host, path, err := httpPkg.SplitURL(a.offer.URL)
	if err != nil {
		kind := errors.KindMalformedURL
		if errors.Is(err, httpPkg.ErrURLTooLong) {
			kind = errors.KindURLTooLong
		}

		return errors.NewError(kind, "split", a.offer.URL, err)
	}

	hostname, port, err := httpPkg.SplitHostPort(host, cfg.Port)
	if err != nil {
		return errors.NewError(errors.KindMalformedURL, "split", a.offer.URL, err)
	}

	if running, boot := d.deps.Store.Running(), d.deps.Store.Boot(); running != boot {
		logger.Warnf("Boot partition %s differs from running partition %s", boot, running)
	}

	ip, err := d.deps.Resolver.Resolve(ctx, hostname, cfg.Timeout)
	if err != nil {
		return errors.NewError(errors.KindDNSFailure, "resolve", hostname, err)
	}

	d.setState(status.Connecting)

	sock, err := d.deps.Sockets.Create()
	if err != nil {
		return errors.NewError(errors.KindConnectFailure, "create socket", hostname, err)
	}

	a.socket = sock
	defer a.release()

	err = sock.Connect(ctx, ip, port, cfg.Timeout)
	if err != nil {
		return errors.NewError(errors.KindConnectFailure, "connect", fmt.Sprintf("%s:%d", ip, port), err)
	}

	d.setState(status.Requesting)

	req := httpPkg.NewRequest(path, host)

	n, err := sock.Send(req, cfg.Timeout)
	if err != nil || n != len(req) {
		if err == nil {
			err = fmt.Errorf("sent %d of %d bytes", n, len(req))
		}

		return errors.NewError(errors.KindSendIncomplete, "send", host, err)
	}

	d.setState(status.ReceivingHeader)

	buf := make([]byte, cfg.RecvBufferSize)
	scanner := httpPkg.NewScanner(buf)

	resp, err := a.receiveHead(ctx, scanner)
	if err != nil {
		return err
	}

	if err := httpPkg.ClassifyStatus(resp.StatusCode); err != nil {
		return errors.WithDetails(
			errors.NewError(errors.KindUnexpectedStatus, "status", a.offer.URL, err),
			map[string]interface{}{"status": resp.StatusCode},
		)
	}

	if resp.ContentLength == 0 {
		return errors.NewError(errors.KindHeaderParseFailure, "header", a.offer.URL,
			fmt.Errorf("%w: zero", httpPkg.ErrInvalidLength))
	}

	a.total = resp.ContentLength

	if a.offer.PackageSize > 0 && a.offer.PackageSize != resp.ContentLength {
		logger.Warnf("Offer size %d differs from Content-Length %d; using Content-Length",
			a.offer.PackageSize, resp.ContentLength)
	}

	logger.Infof("Attempt %s: status %d, body %s", a.id, resp.StatusCode, humanize.IBytes(uint64(a.total)))

	d.setState(status.Streaming)

	a.partition, err = d.deps.Store.NextUpdate()
	if err != nil {
		return errors.NewError(errors.KindFlashOpenFailure, "select partition", "", err)
	}

	a.writer, err = flash.Begin(d.deps.Store, a.partition, a.total)
	if err != nil {
		return errors.NewError(errors.KindFlashOpenFailure, "begin", a.partition.Label, err)
	}

	a.journal(repository.PhaseStarted, "", false)

	body := scanner.Body()
	if int64(len(body)) > a.total {
		body = body[:a.total]
	}

	if err := a.write(body); err != nil {
		return err
	}

	if err := a.streamBody(ctx, buf); err != nil {
		return err
	}

	if _, err := a.reporter.Finish(a.written(), a.total); err != nil {
		logger.Warnf("Failed to acknowledge final progress: %v", err)
	}

	logger.Infof("Attempt %s: wrote %s to %s", a.id, humanize.IBytes(uint64(a.written())), a.partition)

	return a.commit(ctx)
}

// receiveHead reads until the scanner has the status line, Content-Length
// and the blank line. Empty reads are timeouts and are retried.
func (a *attempt) receiveHead(ctx context.Context, scanner *httpPkg.Scanner) (httpPkg.Response, error) {
	for {
		if err := ctx.Err(); err != nil {
			return httpPkg.Response{}, errors.NewError(errors.KindRecvError, "recv header", a.offer.URL, err)
		}

		n, err := a.socket.Recv(scanner.Free(), a.d.config.Timeout)
		if errors.Is(err, io.EOF) {
			return httpPkg.Response{}, errors.NewError(errors.KindHeaderParseFailure, "recv header", a.offer.URL,
				fmt.Errorf("connection closed after %d bytes: %w", scanner.Len(), err))
		}

		if err != nil {
			return httpPkg.Response{}, errors.NewError(errors.KindRecvError, "recv header", a.offer.URL, err)
		}

		if n == 0 {
			continue
		}

		scanner.Advance(n)

		resp, done, err := scanner.Scan()
		if err != nil {
			return httpPkg.Response{}, errors.NewError(errors.KindHeaderParseFailure, "parse header", a.offer.URL, err)
		}

		if done {
			return resp, nil
		}
	}
}

// streamBody receives the rest of the body into buf and writes it out.
// Bytes past the declared length are dropped.
func (a *attempt) streamBody(ctx context.Context, buf []byte) error {
	for a.writer.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return errors.NewError(errors.KindRecvError, "recv body", a.offer.URL, err)
		}

		n, err := a.socket.Recv(buf, a.d.config.Timeout)
		if errors.Is(err, io.EOF) {
			return errors.WithDetails(
				errors.NewError(errors.KindBodyLengthMismatch, "recv body", a.offer.URL,
					fmt.Errorf("connection closed after %d of %d bytes: %w", a.written(), a.total, err)),
				map[string]interface{}{"written": a.written(), "declared": a.total},
			)
		}

		if err != nil {
			return errors.NewError(errors.KindRecvError, "recv body", a.offer.URL, err)
		}

		if n == 0 {
			continue
		}

		chunk := buf[:n]
		if rem := a.writer.Remaining(); int64(n) > rem {
			chunk = chunk[:rem]
		}

		if err := a.write(chunk); err != nil {
			return err
		}
	}

	return nil
}

func (a *attempt) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if _, err := a.writer.Write(b); err != nil {
		return errors.NewError(errors.KindFlashWriteFailure, "write", a.partition.Label, err)
	}

	if _, err := a.reporter.Progress(a.written(), a.total); err != nil {
		logger.Warnf("Failed to acknowledge progress: %v", err)
	}

	return nil
}

func (a *attempt) commit(ctx context.Context) error {
	d := a.d

	d.setState(status.Committing)

	if err := a.writer.Commit(); err != nil {
		if errors.Is(err, flash.ErrIncomplete) {
			return errors.NewError(errors.KindBodyLengthMismatch, "commit", a.partition.Label, err)
		}

		return errors.NewError(errors.KindFlashCommitFailure, "commit", a.partition.Label, err)
	}

	// Boot the partition the image was actually written to.
	written := a.writer.Partition()
	if err := d.deps.Store.SetBootPartition(written); err != nil {
		return errors.NewError(errors.KindBootSetFailure, "set boot", written.Label, err)
	}

	a.release()
	a.journal(repository.PhaseCommitted, "", false)

	if err := a.reporter.Result(true, "", a.offer.TargetVersion); err != nil {
		logger.Warnf("Attempt %s: result not delivered, left pending: %v", a.id, err)
	} else if d.deps.Journal != nil {
		if err := d.deps.Journal.MarkReported(a.id); err != nil {
			logger.Warnf("Attempt %s: failed to mark result reported: %v", a.id, err)
		}
	}

	d.setState(status.Restarting)

	logger.Infof("Attempt %s: boot partition set to %s, restarting in %v", a.id, written, d.config.RestartDelay)

	select {
	case <-d.config.Clock.After(d.config.RestartDelay):
	case <-ctx.Done():
		logger.Warnf("Attempt %s: restart cancelled: %v", a.id, ctx.Err())
		return nil
	}

	if d.deps.Restarter == nil {
		return nil
	}

	if err := d.deps.Restarter.Restart(); err != nil {
		logger.Errorf("Attempt %s: restart failed: %v", a.id, err)
	}

	return nil
}

// fail reports the failed result once and journals the failure.
func (a *attempt) fail(err error) {
	kind := errors.KindOf(err)

	logger.Errorf("Attempt %s failed (%s): %v", a.id, errors.ClassOf(kind), err)

	if a.writer != nil {
		if abortErr := a.writer.Abort(); abortErr != nil {
			logger.Warnf("Attempt %s: failed to abort partition write: %v", a.id, abortErr)
		}
	}

	a.release()

	ackErr := a.reporter.Result(false, err.Error(), a.offer.TargetVersion)
	if ackErr != nil {
		logger.Warnf("Attempt %s: failed to acknowledge result: %v", a.id, ackErr)
	}

	a.journal(repository.PhaseFailed, string(kind), ackErr == nil)
}

// release destroys the socket. It is safe to call more than once.
func (a *attempt) release() {
	if a.socket == nil {
		return
	}

	if err := a.socket.Destroy(); err != nil {
		logger.Debugf("Attempt %s: socket destroy: %v", a.id, err)
	}

	a.socket = nil
}

func (a *attempt) written() int64 {
	if a.writer == nil {
		return 0
	}

	return a.writer.Written()
}

func (a *attempt) journal(phase repository.Phase, kind string, reported bool) {
	if a.d.deps.Journal == nil {
		return
	}

	record := &repository.Record{
		ID:             a.id,
		TargetVersion:  a.offer.TargetVersion,
		URL:            a.offer.URL,
		Partition:      a.partition.Label,
		Phase:          phase,
		BytesWritten:   a.written(),
		TotalBytes:     a.total,
		ErrorKind:      kind,
		ResultReported: reported,
		StartedAt:      a.started,
		UpdatedAt:      a.d.config.Clock.Now(),
	}

	if err := a.d.deps.Journal.Save(record); err != nil {
		logger.Warnf("Attempt %s: failed to journal %s: %v", a.id, phase, err)
	}
}
