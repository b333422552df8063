package dispatcher

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/outbox/domain"
	"github.com/smallbiznis/sitecraft/internal/ratelimit"
	"github.com/smallbiznis/sitecraft/pkg/db"
	"github.com/smallbiznis/sitecraft/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dispatchLockKey = "outbox:dispatch"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Publisher domain.Publisher
	Locker    *ratelimit.Locker  `optional:"true"`
	Telemetry *telemetry.Metrics `optional:"true"`
	Config    Config             `optional:"true"`
}

// Worker publishes committed outbox rows and marks them published.
type Worker struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	publisher domain.Publisher
	locker    *ratelimit.Locker
	telemetry *telemetry.Metrics
	cfg       Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:        p.DB,
		log:       p.Log.Named("outbox.dispatcher"),
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
		locker:    p.Locker,
		telemetry: p.Telemetry,
		cfg:       p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce publishes at most one batch and returns how many rows went out.
func (w *Worker) RunOnce(parentCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	if w.needsLock() {
		token, ok, err := w.locker.TryLock(ctx, dispatchLockKey, w.cfg.LockTTL)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := w.locker.Release(context.Background(), dispatchLockKey, token); err != nil {
				w.log.Warn("release outbox lock failed", zap.Error(err))
			}
		}()
	}

	published, err := w.processBatch(ctx)
	w.reportBacklog(ctx)
	return published, err
}

// needsLock is true when row locks cannot keep two dispatchers apart.
func (w *Worker) needsLock() bool {
	return w.locker != nil && !db.SupportsSkipLocked(w.db)
}

func (w *Worker) processBatch(ctx context.Context) (int, error) {
	start := time.Now()
	published := 0

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := w.repo.LockPending(ctx, tx, w.cfg.BatchSize, w.cfg.MaxAttempts)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		if pubErr := w.publisher.Publish(ctx, rows); pubErr != nil {
			w.log.Warn("outbox publish failed",
				zap.Error(pubErr),
				zap.Int("batch", len(rows)),
			)
			n, err := w.publishEach(ctx, tx, rows)
			published = n
			w.telemetry.RecordOutboxBatch("failed", len(rows)-n, time.Since(start))
			return err
		}

		if err := w.repo.MarkPublished(ctx, tx, messageIDs(rows), w.clock.Now()); err != nil {
			return err
		}
		published = len(rows)
		w.telemetry.RecordOutboxBatch("published", len(rows), time.Since(start))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// publishEach retries a rejected batch one row at a time so a single bad
// row only fails itself. Attempts are counted only when some row went
// through; otherwise the bus is treated as down.
func (w *Worker) publishEach(ctx context.Context, tx *gorm.DB, rows []domain.Message) (int, error) {
	var ok []snowflake.ID
	var failed []domain.Message
	var lastErr error
	for _, row := range rows {
		if err := w.publisher.Publish(ctx, []domain.Message{row}); err != nil {
			failed = append(failed, row)
			lastErr = err
			continue
		}
		ok = append(ok, row.ID)
	}

	if err := w.repo.MarkPublished(ctx, tx, ok, w.clock.Now()); err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return len(ok), nil
	}

	countAttempt := len(ok) > 0
	if err := w.repo.MarkFailed(ctx, tx, messageIDs(failed), lastErr.Error(), countAttempt); err != nil {
		return 0, err
	}
	if countAttempt {
		for _, row := range failed {
			if row.Attempts+1 >= w.cfg.MaxAttempts {
				w.log.Error("outbox message parked",
					zap.Int64("message_id", row.ID.Int64()),
					zap.Int64("payment_id", row.PaymentID.Int64()),
					zap.Int("attempts", row.Attempts+1),
					zap.Error(lastErr),
				)
			}
		}
	}
	return len(ok), nil
}

func messageIDs(rows []domain.Message) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func (w *Worker) reportBacklog(ctx context.Context) {
	if w.telemetry == nil {
		return
	}
	count, err := w.repo.CountPending(ctx, w.db)
	if err != nil {
		return
	}
	w.telemetry.SetOutboxBacklog(float64(count))
}
