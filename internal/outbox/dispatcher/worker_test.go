package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/outbox/domain"
	"github.com/smallbiznis/sitecraft/internal/outbox/repository"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"github.com/smallbiznis/sitecraft/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakePublisher struct {
	mu      sync.Mutex
	fail    error
	reject  map[snowflake.ID]bool
	batches [][]domain.Message
}

func (p *fakePublisher) Publish(ctx context.Context, msgs []domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	for _, msg := range msgs {
		if p.reject[msg.ID] {
			return errors.New("message too large")
		}
	}
	p.batches = append(p.batches, msgs)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

var (
	seedNodeOnce sync.Once
	seedNodeVal  *snowflake.Node
	seedNodeErr  error
)

// seedNode is shared so repeated seeding never reuses an id.
func seedNode(t *testing.T) *snowflake.Node {
	t.Helper()
	seedNodeOnce.Do(func() {
		seedNodeVal, seedNodeErr = snowflake.NewNode(3)
	})
	require.NoError(t, seedNodeErr)
	return seedNodeVal
}

func seedMessages(t *testing.T, db *gorm.DB, repo domain.Repository, n int) {
	t.Helper()
	node := seedNode(t)

	orderID := "order_1"
	for i := 0; i < n; i++ {
		payment := paymentdomain.Payment{
			ID:              node.Generate(),
			UserID:          "u1",
			Amount:          9900,
			Currency:        "INR",
			Status:          paymentdomain.StatusCompleted,
			ExternalOrderID: &orderID,
		}
		msg, err := domain.NewTransitionMessage(node.Generate(), "payments.transitions", payment,
			paymentdomain.StatusPending, paymentdomain.SourceWebhook, map[string]string{"x-correlation-id": "c1"}, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, repo.Insert(context.Background(), db, msg))
	}
}

func newTestWorker(t *testing.T, pub domain.Publisher, batch int) (*Worker, *gorm.DB, domain.Repository) {
	t.Helper()
	db := testutil.OpenDB(t)
	repo := repository.Provide()
	w := NewWorker(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:      repo,
		Publisher: pub,
		Config:    Config{BatchSize: batch},
	})
	return w, db, repo
}

func TestRunOncePublishesAndMarksBatch(t *testing.T) {
	pub := &fakePublisher{}
	w, db, repo := newTestWorker(t, pub, 2)
	seedMessages(t, db, repo, 3)

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := repo.CountPending(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, pub.batches, 2)
	assert.Equal(t, "c1", pub.batches[0][0].HeaderMap()["x-correlation-id"])
}

func TestRunOnceKeepsRowsPendingWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("broker down")}
	w, db, repo := newTestWorker(t, pub, 10)
	seedMessages(t, db, repo, 2)

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := repo.CountPending(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	var rows []struct {
		Attempts  int
		LastError *string
	}
	require.NoError(t, db.Raw(`SELECT attempts, last_error FROM payment_outbox`).Scan(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Zero(t, row.Attempts)
		require.NotNil(t, row.LastError)
		assert.Equal(t, "broker down", *row.LastError)
	}

	pub.fail = nil
	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRejectedRowDoesNotBlockOthersAndIsParked(t *testing.T) {
	pub := &fakePublisher{reject: map[snowflake.ID]bool{}}
	w, db, repo := newTestWorker(t, pub, 10)
	w.cfg.MaxAttempts = 2
	ctx := context.Background()

	seedMessages(t, db, repo, 3)
	var ids []snowflake.ID
	require.NoError(t, db.Raw(`SELECT id FROM payment_outbox ORDER BY created_at ASC, id ASC`).Scan(&ids).Error)
	pub.reject[ids[0]] = true

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Alone in its batch the failure is not counted.
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	seedMessages(t, db, repo, 1)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var attempts int
	require.NoError(t, db.Raw(`SELECT attempts FROM payment_outbox WHERE id = ?`, ids[0]).Scan(&attempts).Error)
	assert.Equal(t, 2, attempts)

	before := len(pub.batches)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, pub.batches, before, "parked row is no longer claimed")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
}
