package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/insightlab/analyst/internal/ingest"
	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/models"
)

// Scheduler periodically re-fetches URL sources whose refresh schedule is
// due. When Redis is available a lock keeps multiple replicas from
// refreshing the same source at once.
type Scheduler struct {
	Store  *store.Store
	Ingest *ingest.Service
	Rdb    *redis.Client
	Stop   chan struct{}

	logger *log.Logger
}

const refreshLockTTL = 10 * time.Minute

func (s *Scheduler) Start() {
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[REFRESH] ", log.LstdFlags)
	}
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-s.Stop:
				return
			case <-ticker.C:
				s.tick(context.Background())
			}
		}
	}()
}

func (s *Scheduler) Shutdown() {
	close(s.Stop)
}

func (s *Scheduler) tick(ctx context.Context) {
	srcs, err := s.Store.ListRefreshableSources(ctx)
	if err != nil {
		s.logger.Printf("list refreshable sources: %v", err)
		return
	}
	now := time.Now()
	for _, src := range srcs {
		if !isDue(src, now) {
			continue
		}
		if !s.acquireLock(ctx, src.Origin) {
			continue
		}
		changed, err := s.Ingest.Refresh(ctx, src)
		switch {
		case err != nil:
			s.logger.Printf("refresh %s: %v", src.Origin, err)
		case changed:
			s.logger.Printf("refreshed %s (content changed)", src.Origin)
		default:
			s.logger.Printf("refreshed %s (unchanged)", src.Origin)
		}
	}
}

// isDue reports whether the source's cron schedule has fired since its last
// ingestion.
func isDue(src models.Source, now time.Time) bool {
	spec := src.RefreshCron
	if spec == "" {
		return false
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return false
	}
	next := expr.Next(src.IngestedAt)
	return !next.IsZero() && !next.After(now)
}

func (s *Scheduler) acquireLock(ctx context.Context, origin string) bool {
	if s.Rdb == nil {
		return true
	}
	ok, err := s.Rdb.SetNX(ctx, "refresh-lock:"+origin, "1", refreshLockTTL).Result()
	if err != nil {
		s.logger.Printf("refresh lock %s: %v", origin, err)
		return false
	}
	return ok
}
