package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/sitecraft/internal/clock"
	"github.com/smallbiznis/sitecraft/internal/config"
	obsmetrics "github.com/smallbiznis/sitecraft/internal/observability/metrics"
	"github.com/smallbiznis/sitecraft/internal/payment/adapters"
	"github.com/smallbiznis/sitecraft/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
	"github.com/smallbiznis/sitecraft/pkg/telemetry"
	"github.com/smallbiznis/sitecraft/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Checkout   *config.CheckoutConfigHolder
	Adapters   *adapters.Registry
	Repo       paymentdomain.Repository
	Store      paymentdomain.Store
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Telemetry  *telemetry.Metrics  `optional:"true"`
}

// Service turns verified processor deliveries into status transitions.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	checkout   *config.CheckoutConfigHolder
	adapters   *adapters.Registry
	configs    map[string]paymentdomain.AdapterConfig
	repo       paymentdomain.Repository
	store      paymentdomain.Store
	obsMetrics *obsmetrics.Metrics
	telemetry  *telemetry.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		checkout: p.Checkout,
		adapters: p.Adapters,
		configs: map[string]paymentdomain.AdapterConfig{
			razorpay.Provider: {
				Provider: razorpay.Provider,
				Config:   map[string]any{"webhook_secret": p.Cfg.Razorpay.WebhookSecret},
			},
		},
		repo:       p.Repo,
		store:      p.Store,
		obsMetrics: p.ObsMetrics,
		telemetry:  p.Telemetry,
	}
}

func (s *Service) Providers() []string {
	return s.adapters.Providers()
}

// IngestWebhook authenticates the raw body before anything else touches it.
// Errors returned after verification are meant to surface as 5xx so the
// processor redelivers.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.WebhookResult, error) {
	start := time.Now()
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}

	adapter, err := s.adapters.NewAdapter(provider, s.configs[provider])
	if err != nil {
		s.log.Error("webhook adapter unavailable", zap.String("provider", provider), zap.Error(err))
		return nil, err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.telemetry.RecordWebhook(provider, "invalid_signature", time.Since(start))
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return nil, err
	}

	envelope, err := adapter.Parse(ctx, payload, headers)
	if err != nil {
		s.telemetry.RecordWebhook(provider, "invalid_payload", time.Since(start))
		s.log.Warn("webhook payload rejected", zap.String("provider", provider), zap.Error(err))
		return nil, err
	}

	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	eventName := envelope.Event.Name()
	log := s.log.With(
		zap.String("provider", provider),
		zap.String("event", eventName),
		zap.String("event_id", envelope.EventID),
		zap.String("correlation_id", correlationID),
	)
	s.obsMetrics.RecordWebhookEvent(ctx, provider, eventName)

	target, actionable := paymentdomain.TargetStatus(envelope.Event)
	ref, _ := paymentdomain.Ref(envelope.Event)
	if !actionable {
		s.telemetry.RecordWebhook(provider, paymentdomain.OutcomeIgnored, time.Since(start))
		log.Info("webhook event ignored")
		return &paymentdomain.WebhookResult{Event: eventName, Outcome: paymentdomain.OutcomeIgnored}, nil
	}

	receipt, duplicate, err := s.recordReceipt(ctx, provider, envelope, ref)
	if err != nil {
		s.telemetry.RecordWebhook(provider, "failed", time.Since(start))
		log.Error("webhook receipt not stored", zap.Error(err))
		return nil, err
	}
	if duplicate {
		s.telemetry.RecordWebhook(provider, paymentdomain.OutcomeDuplicate, time.Since(start))
		log.Info("webhook already processed")
		return &paymentdomain.WebhookResult{Event: eventName, Outcome: paymentdomain.OutcomeDuplicate}, nil
	}

	result, err := s.apply(ctx, log, target, ref)
	if err != nil {
		s.telemetry.RecordWebhook(provider, "failed", time.Since(start))
		log.Error("webhook transition failed", zap.String("order_id", ref.OrderID), zap.Error(err))
		return nil, err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, receipt.ID, s.clock.Now()); err != nil {
		s.telemetry.RecordWebhook(provider, "failed", time.Since(start))
		log.Error("webhook receipt not marked processed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", paymentdomain.ErrStorage, err)
	}

	outcome := paymentdomain.OutcomeNoop
	if result.Applied {
		outcome = paymentdomain.OutcomeApplied
	}
	s.telemetry.RecordWebhook(provider, outcome, time.Since(start))
	log.Info("webhook processed",
		zap.String("order_id", ref.OrderID),
		zap.String("status", string(result.Payment.Status)),
		zap.String("outcome", outcome),
	)
	return &paymentdomain.WebhookResult{Event: eventName, Outcome: outcome}, nil
}

// recordReceipt stores the delivery once. duplicate is true only when an
// earlier delivery of the same event finished processing.
func (s *Service) recordReceipt(
	ctx context.Context,
	provider string,
	envelope *paymentdomain.Envelope,
	ref paymentdomain.PaymentRef,
) (*paymentdomain.EventRecord, bool, error) {
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: envelope.EventID,
		EventType:       envelope.Event.Name(),
		Payload:         datatypes.JSON(envelope.Raw),
		ReceivedAt:      s.clock.Now(),
	}
	if ref.OrderID != "" {
		orderID := ref.OrderID
		record.OrderID = &orderID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", paymentdomain.ErrStorage, err)
	}
	if inserted {
		return &record, false, nil
	}

	stored, err := s.repo.FindEvent(ctx, s.db, provider, envelope.EventID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", paymentdomain.ErrStorage, err)
	}
	if stored == nil {
		return nil, false, fmt.Errorf("%w: receipt %s vanished", paymentdomain.ErrStorage, envelope.EventID)
	}
	return stored, stored.ProcessedAt != nil, nil
}

// apply runs the conditional update, retrying while the order id is not yet
// visible. The webhook can outrun the order gateway binding the id.
func (s *Service) apply(
	ctx context.Context,
	log *zap.Logger,
	target paymentdomain.Status,
	ref paymentdomain.PaymentRef,
) (*paymentdomain.TransitionResult, error) {
	cfg := s.checkout.Get()
	attempt := 0
	update := func() (*paymentdomain.TransitionResult, error) {
		attempt++
		if attempt > 1 {
			s.telemetry.RecordLookupRetry()
		}
		result, err := s.store.UpdateStatus(ctx, ref.OrderID, target, ref.PaymentID, paymentdomain.SourceWebhook)
		if errors.Is(err, paymentdomain.ErrNotFound) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.WebhookLookupInitialInterval
	result, err := backoff.Retry(ctx, update,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(cfg.WebhookLookupAttempts),
		backoff.WithMaxElapsedTime(cfg.WebhookLookupMaxElapsed),
	)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, paymentdomain.ErrNotFound) {
		return nil, err
	}

	paymentID, ok := parseReceipt(ref.Receipt)
	if !ok {
		return nil, fmt.Errorf("%w: order %s not found after %d lookups", paymentdomain.ErrInconsistent, ref.OrderID, attempt)
	}
	log.Warn("order id not found, binding through receipt",
		zap.String("order_id", ref.OrderID),
		zap.String("receipt", ref.Receipt),
	)
	if err := s.store.AttachOrderID(ctx, paymentID, ref.OrderID); err != nil {
		if errors.Is(err, paymentdomain.ErrNotFound) {
			return nil, fmt.Errorf("%w: receipt %s matches no payment", paymentdomain.ErrInconsistent, ref.Receipt)
		}
		return nil, err
	}
	return s.store.UpdateStatus(ctx, ref.OrderID, target, ref.PaymentID, paymentdomain.SourceWebhook)
}

func parseReceipt(receipt string) (snowflake.ID, bool) {
	receipt = strings.TrimSpace(receipt)
	if receipt == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(receipt, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return snowflake.ID(id), true
}
