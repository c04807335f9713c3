// Package service hosts the background jobs of the server process.
package service

import (
	"context"
	"time"

	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/pkg/icron"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// Scheduler is the part of *cron.Cron the service needs.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
}

// MaintenanceService keeps the local translation store below its prune
// target on a cron schedule, so quota pruning on the write path stays rare.
type MaintenanceService struct {
	store    translation.LocalStore
	target   int
	cronExpr string
	cron     Scheduler
	timeout  time.Duration

	group singleflight.Group
}

func NewMaintenanceService(store translation.LocalStore, target int, cronExpr string, scheduler Scheduler) *MaintenanceService {
	return &MaintenanceService{
		store:    store,
		target:   target,
		cronExpr: cronExpr,
		cron:     scheduler,
		timeout:  time.Minute,
	}
}

// Schedule registers the compaction job. Overlapping triggers share one run.
func (s *MaintenanceService) Schedule(ctx context.Context) error {
	log.Info("Scheduling local store compaction (%s, target %d)", s.cronExpr, s.target)

	runFunc := func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Error("Local store compaction failed: %v", err)
		}
	}
	if _, err := s.cron.AddFunc(s.cronExpr, runFunc); err != nil {
		return err
	}

	if info, err := icron.GetTriggerInfo(s.cronExpr, time.Now()); err == nil {
		log.Info("Next compaction at %s (in %s)", info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

// RunOnce compacts the store now and returns how many records were removed.
func (s *MaintenanceService) RunOnce(ctx context.Context) (int, error) {
	v, err, shared := s.group.Do("compact", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return translation.Compact(ctx, s.store, s.target)
	})
	if err != nil {
		return 0, err
	}

	pruned := v.(int)
	if !shared && pruned > 0 {
		log.Info("Compacted local store: removed %d records", pruned)
	}
	return pruned, nil
}
