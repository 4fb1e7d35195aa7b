package agent_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/otad/internal/agent"
	"github.com/NamanBalaji/otad/internal/config"
	"github.com/NamanBalaji/otad/internal/progress"
	"github.com/NamanBalaji/otad/internal/repository"
)

type acker struct {
	versions []string
	failOn   string
}

func (a *acker) AckProgress(int32, string, int64, int64) error {
	return nil
}

func (a *acker) AckResult(code int32, _ string, version string) error {
	if version == a.failOn {
		return errors.New("offline")
	}

	if code == progress.CodeOK {
		a.versions = append(a.versions, version)
	}

	return nil
}

func TestReplayPending(t *testing.T) {
	journal, err := agent.OpenJournal(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	defer journal.Close()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []string{"1.0.1", "1.0.2"} {
		require.NoError(t, journal.Save(&repository.Record{
			ID:            uuid.New(),
			TargetVersion: v,
			Phase:         repository.PhaseCommitted,
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, journal.Save(&repository.Record{
		ID:            uuid.New(),
		TargetVersion: "0.9.0",
		Phase:         repository.PhaseFailed,
	}))

	a := &acker{failOn: "1.0.2"}

	n, err := agent.ReplayPending(journal, a, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1.0.1"}, a.versions)

	a.failOn = ""

	n, err = agent.ReplayPending(journal, a, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1.0.1", "1.0.2"}, a.versions)

	n, err = agent.ReplayPending(journal, a, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing left to replay")
}

func TestReplayPendingSkipsActiveAttempt(t *testing.T) {
	journal, err := agent.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()

	active := uuid.New()
	for id, v := range map[uuid.UUID]string{active: "2.0.0", uuid.New(): "1.9.0"} {
		require.NoError(t, journal.Save(&repository.Record{
			ID:            id,
			TargetVersion: v,
			Phase:         repository.PhaseCommitted,
		}))
	}

	a := &acker{}

	n, err := agent.ReplayPending(journal, a, func() (uuid.UUID, bool) { return active, true })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1.9.0"}, a.versions)

	rec, err := journal.Find(active)
	require.NoError(t, err)
	assert.True(t, rec.Pending(), "the running attempt keeps its own result")

	n, err = agent.ReplayPending(journal, a, func() (uuid.UUID, bool) { return uuid.Nil, false })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1.9.0", "2.0.0"}, a.versions)
}

func TestNewOpensStoreAndJournal(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Flash.Dir = filepath.Join(dir, "flash")
	cfg.Journal.Path = filepath.Join(dir, "data", "journal.db")

	a, err := agent.New(&cfg)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.FileExists(t, filepath.Join(dir, "flash", "otadata.yaml"))
	assert.FileExists(t, cfg.Journal.Path)
}

func TestDownloaderOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Len(t, agent.DownloaderOptions(&cfg), 5)
}
