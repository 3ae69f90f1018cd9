package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/emergency-report-api/config"
)

func TestReloadTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evlc.yaml")
	store := config.NewTuningStore(path, nil)
	s := NewScheduler(store)
	before := store.Load().Version()

	require.NoError(t, os.WriteFile(path, []byte("thresholds: ["), 0o600))
	s.ReloadTuning()
	assert.Equal(t, before, store.Load().Version())

	require.NoError(t, os.WriteFile(path, []byte("label: storm-season\nvotes:\n  community_min: 5\n"), 0o600))
	s.ReloadTuning()
	assert.NotEqual(t, before, store.Load().Version())
	assert.Equal(t, 5, store.Load().Votes.CommunityMin)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(config.NewTuningStore("", nil))
	s.Start()
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}
