package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/config"
	obsmetrics "github.com/smallbiznis/sitecraft/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/sitecraft/internal/outbox/domain"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"github.com/smallbiznis/sitecraft/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StoreParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Checkout   *config.CheckoutConfigHolder
	Repo       paymentdomain.Repository
	OutboxRepo outboxdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Store is the only writer of payment rows. Every status change goes through
// one conditional update and, when applied, one outbox row in the same
// transaction.
type Store struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	topic      string
	checkout   *config.CheckoutConfigHolder
	repo       paymentdomain.Repository
	outboxRepo outboxdomain.Repository
	obsMetrics *obsmetrics.Metrics
	observers  []paymentdomain.TransitionObserver
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:         p.DB,
		log:        p.Log.Named("payment.store"),
		genID:      p.GenID,
		clock:      p.Clock,
		topic:      p.Cfg.Kafka.Topic,
		checkout:   p.Checkout,
		repo:       p.Repo,
		outboxRepo: p.OutboxRepo,
		obsMetrics: p.ObsMetrics,
	}
}

// AddObserver registers o for applied transitions. Call it during startup,
// before traffic arrives.
func (s *Store) AddObserver(o paymentdomain.TransitionObserver) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

func (s *Store) Create(ctx context.Context, userID string, amount int64, currency string) (*paymentdomain.Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, paymentdomain.ErrInvalidUserID
	}
	if amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Amount:    amount,
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		Status:    paymentdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		return nil, storageError(err)
	}
	return payment, nil
}

// AttachOrderID records the processor order id on a pending row. Attaching
// the id a row already carries is a no-op.
func (s *Store) AttachOrderID(ctx context.Context, id snowflake.ID, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.ErrInvalidOrderID
	}
	ok, err := s.repo.AttachOrderID(ctx, s.db, id, orderID, s.clock.Now())
	if err != nil {
		return storageError(err)
	}
	if ok {
		return nil
	}

	existing, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return storageError(err)
	}
	if existing == nil {
		return paymentdomain.ErrNotFound
	}
	return fmt.Errorf("%w: payment %s already bound to another order", paymentdomain.ErrInconsistent, id)
}

// UpdateStatus moves the row for orderID out of pending. A row that is
// already terminal is returned unchanged with Applied=false.
func (s *Store) UpdateStatus(
	ctx context.Context,
	orderID string,
	status paymentdomain.Status,
	externalPaymentID string,
	source string,
) (*paymentdomain.TransitionResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidOrderID
	}
	if !paymentdomain.CanTransition(paymentdomain.StatusPending, status) {
		return nil, paymentdomain.ErrInvalidTransition
	}

	var paymentRef *string
	if trimmed := strings.TrimSpace(externalPaymentID); trimmed != "" {
		paymentRef = &trimmed
	}

	var result paymentdomain.TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		applied, err := s.repo.TransitionPending(ctx, tx, orderID, status, paymentRef, now)
		if err != nil {
			return storageError(err)
		}

		payment, err := s.repo.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return storageError(err)
		}
		if payment == nil {
			return paymentdomain.ErrNotFound
		}

		result = paymentdomain.TransitionResult{Payment: payment, Previous: payment.Status, Applied: applied}
		if !applied {
			if payment.Status == paymentdomain.StatusPending {
				return paymentdomain.ErrInvalidTransition
			}
			return nil
		}
		result.Previous = paymentdomain.StatusPending

		msg, err := outboxdomain.NewTransitionMessage(
			s.genID.Generate(),
			s.topic,
			*payment,
			paymentdomain.StatusPending,
			source,
			correlation.Metadata(ctx),
			now,
		)
		if err != nil {
			return err
		}
		if err := s.outboxRepo.Insert(ctx, tx, msg); err != nil {
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Applied {
		s.log.Info("payment transition skipped",
			zap.String("order_id", orderID),
			zap.String("current_status", string(result.Payment.Status)),
			zap.String("requested_status", string(status)),
			zap.String("source", source),
		)
		return &result, nil
	}

	s.log.Info("payment transitioned",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
		zap.String("source", source),
	)
	s.obsMetrics.RecordPaymentTransition(ctx, string(status), source)
	for _, observer := range s.observers {
		observer.PaymentTransitioned(ctx, *result.Payment)
	}
	return &result, nil
}

func (s *Store) GetByOrderID(ctx context.Context, orderID string) (*paymentdomain.Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidOrderID
	}
	payment, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, storageError(err)
	}
	if payment == nil {
		return nil, paymentdomain.ErrNotFound
	}
	return payment, nil
}

// GetActiveForUser returns the newest completed payment created inside the
// validity window, or nil.
func (s *Store) GetActiveForUser(ctx context.Context, userID string) (*paymentdomain.Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, paymentdomain.ErrInvalidUserID
	}
	since := s.clock.Now().Add(-s.checkout.Get().ValidityWindow)
	payment, err := s.repo.FindLatestCompleted(ctx, s.db, userID, since)
	if err != nil {
		return nil, storageError(err)
	}
	return payment, nil
}

func (s *Store) ListForUser(ctx context.Context, userID string, limit, offset int) ([]paymentdomain.Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, paymentdomain.ErrInvalidUserID
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID, limit, offset)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

// storageError tags a persistence failure. Domain errors pass through.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		paymentdomain.ErrNotFound,
		paymentdomain.ErrInvalidTransition,
		paymentdomain.ErrInconsistent,
		paymentdomain.ErrStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", paymentdomain.ErrStorage, err)
}
