package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/otad/internal/cloud"
	"github.com/NamanBalaji/otad/internal/config"
	"github.com/NamanBalaji/otad/internal/engine"
	"github.com/NamanBalaji/otad/internal/errors"
	"github.com/NamanBalaji/otad/internal/flash"
	"github.com/NamanBalaji/otad/internal/logger"
	"github.com/NamanBalaji/otad/internal/ota"
	"github.com/NamanBalaji/otad/internal/progress"
	"github.com/NamanBalaji/otad/internal/repository"
	"github.com/NamanBalaji/otad/internal/system"
	"github.com/NamanBalaji/otad/internal/transport"
)

// PendingJournal is the part of the journal used to replay results.
type PendingJournal interface {
	FindPending() ([]*repository.Record, error)
	MarkReported(id uuid.UUID) error
}

// Agent is the long-running device process: cloud session, download engine
// and journal.
type Agent struct {
	cfg        *config.Config
	store      *flash.FileStore
	journal    *repository.BboltRepository
	cloud      *cloud.Client
	engine     *engine.Engine
	downloader *ota.Downloader
	replay     chan struct{}
}

// New opens the partition store and journal and wires the pipeline to the cloud.
func New(cfg *config.Config) (*Agent, error) {
	store, err := flash.OpenFileStore(cfg.Flash.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open partitions: %w", err)
	}

	journal, err := OpenJournal(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:     cfg,
		store:   store,
		journal: journal,
		replay:  make(chan struct{}, 1),
	}

	a.cloud = cloud.New(cloud.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		Topics:         cloud.NewTopics(cfg.MQTT.TopicPrefix, cfg.Device.ID),
		QoS:            cfg.MQTT.QoS,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		OnConnect:      a.requestReplay,
	}, a.offer)

	a.downloader = ota.New(ota.Deps{
		Resolver:  transport.NetResolver{},
		Sockets:   transport.TCPFactory{},
		Store:     store,
		Acker:     a.cloud,
		Journal:   journal,
		Restarter: system.NewRestarter(),
	}, DownloaderOptions(cfg)...)

	a.engine = engine.New(a.downloader, engine.WithHaltDelay(cfg.OTA.HaltDelay))

	return a, nil
}

// DownloaderOptions maps the ota config section onto downloader options.
func DownloaderOptions(cfg *config.Config) []ota.ConfigOption {
	return []ota.ConfigOption{
		ota.WithPort(cfg.OTA.Port),
		ota.WithTimeout(cfg.OTA.Timeout),
		ota.WithRecvBufferSize(cfg.OTA.RecvBufferSize),
		ota.WithProgressInterval(cfg.OTA.ProgressInterval),
		ota.WithRestartDelay(cfg.OTA.RestartDelay),
	}
}

// OpenJournal opens the journal, creating its directory.
func OpenJournal(path string) (*repository.BboltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	journal, err := repository.NewBboltRepository(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return journal, nil
}

func (a *Agent) offer(o ota.Offer) bool {
	return a.engine.Offer(o)
}

func (a *Agent) requestReplay() {
	select {
	case a.replay <- struct{}{}:
	default:
	}
}

// Run connects to the cloud and serves offers until ctx is done or the
// engine halts.
func (a *Agent) Run(ctx context.Context) error {
	logger.Infof("Device %s running firmware %s from %s (boot %s)",
		a.cfg.Device.ID, a.cfg.Device.FirmwareVersion, a.store.Running(), a.store.Boot())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.cloud.Connect(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to connect to %s: %w", a.cfg.MQTT.Broker, err)
		}

		return nil
	})

	g.Go(func() error {
		return a.engine.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-a.replay:
				n, err := ReplayPending(a.journal, a.cloud, a.downloader.Active)
				if err != nil {
					logger.Warnf("Replayed %d pending results before error: %v", n, err)
				} else if n > 0 {
					logger.Infof("Replayed %d pending results", n)
				}
			}
		}
	})

	err := g.Wait()

	a.cloud.Disconnect()

	return err
}

// Close releases the journal.
func (a *Agent) Close() error {
	return a.journal.Close()
}

// ReplayPending delivers every journaled result that was committed but never
// acknowledged and marks it reported. It stops at the first failed delivery.
// The attempt reported by active, if any, still owns its result and is skipped.
func ReplayPending(journal PendingJournal, acker progress.Acker, active func() (uuid.UUID, bool)) (int, error) {
	pending, err := journal.FindPending()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending results: %w", err)
	}

	var inFlight uuid.UUID
	if active != nil {
		if id, ok := active(); ok {
			inFlight = id
		}
	}

	replayed := 0

	for _, rec := range pending {
		if inFlight != uuid.Nil && rec.ID == inFlight {
			logger.Debugf("Skipping replay of %s: attempt still in progress", rec.ID)
			continue
		}

		if err := acker.AckResult(progress.CodeOK, "", rec.TargetVersion); err != nil {
			return replayed, fmt.Errorf("failed to deliver result of %s: %w", rec.ID, err)
		}

		if err := journal.MarkReported(rec.ID); err != nil {
			return replayed, fmt.Errorf("failed to mark %s reported: %w", rec.ID, err)
		}

		replayed++
	}

	return replayed, nil
}
