package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MimeLyc/dualsub/internal/persistence"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	spec string
	job  func()
}

func (f *fakeScheduler) AddFunc(spec string, cmd func()) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return 0, err
	}
	f.spec = spec
	f.job = cmd
	return 1, nil
}

func seedStore(t *testing.T, n int) *persistence.SQLiteStore {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "dualsub.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, store.Put(context.Background(), translation.Record{
			Key:         translation.Key{VideoID: "v", Model: "m", SourceLang: "en", TargetLang: "ja", Text: string(rune('a' + i))},
			Translation: "x",
			UpdatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	return store
}

func TestMaintenance_RunOnce(t *testing.T) {
	store := seedStore(t, 6)
	svc := NewMaintenanceService(store, 4, "0 * * * *", &fakeScheduler{})

	pruned, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	_, found, err := store.Get(context.Background(), translation.Key{VideoID: "v", Model: "m", SourceLang: "en", TargetLang: "ja", Text: "a"})
	require.NoError(t, err)
	assert.False(t, found, "oldest record is removed first")
}

func TestMaintenance_Schedule(t *testing.T) {
	store := seedStore(t, 3)
	scheduler := &fakeScheduler{}
	svc := NewMaintenanceService(store, 1, "*/5 * * * *", scheduler)

	require.NoError(t, svc.Schedule(context.Background()))
	assert.Equal(t, "*/5 * * * *", scheduler.spec)
	require.NotNil(t, scheduler.job)

	scheduler.job()
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMaintenance_ScheduleRejectsBadSpec(t *testing.T) {
	svc := NewMaintenanceService(seedStore(t, 0), 1, "not a cron", &fakeScheduler{})
	assert.Error(t, svc.Schedule(context.Background()))
}
