package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/outbox/domain"
	"github.com/smallbiznis/sitecraft/pkg/db"
	"gorm.io/gorm"
)

const messageColumns = `id, payment_id, topic, message_key, payload, headers,
	attempts, last_error, created_at, published_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, msg *domain.Message) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payment_outbox (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.PaymentID,
		msg.Topic,
		msg.MessageKey,
		msg.Payload,
		msg.Headers,
		msg.Attempts,
		msg.LastError,
		msg.CreatedAt,
		msg.PublishedAt,
	).Error
}

// LockPending claims unpublished rows for the surrounding transaction, least
// retried first so a failing row cannot hold back newer ones. Rows that used
// up maxAttempts are parked and never claimed. Rows held by another
// dispatcher are skipped where the dialect allows it.
func (r *repo) LockPending(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		 FROM payment_outbox
		 WHERE published_at IS NULL AND attempts < ?
		 ORDER BY attempts ASC, created_at ASC, id ASC
		 LIMIT ?`
	if db.SupportsSkipLocked(tx) {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var rows []domain.Message
	if err := tx.WithContext(ctx).Raw(query, maxAttempts, limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MarkPublished(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_outbox
		 SET published_at = ?, attempts = attempts + 1, last_error = NULL
		 WHERE id IN ?`,
		at,
		ids,
	).Error
}

// MarkFailed records the publish error. countAttempt is false when the bus
// itself was unreachable, so an outage does not push rows toward parking.
func (r *repo) MarkFailed(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, reason string, countAttempt bool) error {
	if len(ids) == 0 {
		return nil
	}
	increment := 0
	if countAttempt {
		increment = 1
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_outbox
		 SET attempts = attempts + ?, last_error = ?
		 WHERE id IN ?`,
		increment,
		reason,
		ids,
	).Error
}

func (r *repo) CountPending(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payment_outbox WHERE published_at IS NULL`,
	).Scan(&count).Error
	return count, err
}
