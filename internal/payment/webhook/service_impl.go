package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	"github.com/smallbiznis/staybook/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/smallbiznis/staybook/internal/webhookauth"
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
	Repo       paymentdomain.Repository
	PaymentSvc paymentdomain.Service
	Auth       *webhookauth.Authenticator
	Adapters   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
	Guardrails *obsmetrics.Guardrails `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	defaultProvider string
	repo            paymentdomain.Repository
	paymentSvc      paymentdomain.Service
	auth            *webhookauth.Authenticator
	adapters        *adapters.Registry
	obsMetrics      *obsmetrics.Metrics
	guardrails      *obsmetrics.Guardrails
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.webhook"),
		genID:           p.GenID,
		clock:           p.Clock,
		defaultProvider: strings.ToLower(strings.TrimSpace(p.Cfg.PaymentProvider)),
		repo:            p.Repo,
		paymentSvc:      p.PaymentSvc,
		auth:            p.Auth,
		adapters:        p.Adapters,
		obsMetrics:      p.ObsMetrics,
		guardrails:      p.Guardrails,
	}
}

// Ingest is the only path that finalizes a ledger entry: authenticate, parse,
// map the reported status, then apply it. Deliveries are idempotent under
// provider retries.
func (s *Service) Ingest(ctx context.Context, provider string, headers http.Header, payload []byte) (paymentdomain.DeliveryResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = s.defaultProvider
	}

	auth := s.auth.Authenticate(headers.Get(webhookauth.HeaderName))
	if !auth.Accepted {
		s.guardrails.WebhookAuthFailure(auth.Reason)
		s.log.Warn("payment webhook rejected",
			zap.String("provider", provider),
			zap.String("reason", auth.Reason),
		)
		return paymentdomain.DeliveryResult{Provider: provider, MatchedSecret: string(auth.Matched)}, paymentdomain.ErrUnauthorized
	}
	switch auth.Matched {
	case webhookauth.MatchedPrevious:
		s.guardrails.PreviousSecretAccepted()
		s.log.Info("payment webhook accepted with previous secret", zap.String("provider", provider))
	case webhookauth.MatchedNotConfigured:
		s.log.Warn("payment webhook verification is not configured", zap.String("provider", provider))
	}

	result := paymentdomain.DeliveryResult{Provider: provider, MatchedSecret: string(auth.Matched)}

	if !json.Valid(payload) {
		return result, paymentdomain.ErrInvalidPayload
	}
	n, err := s.adapters.Parse(provider, payload)
	if err != nil {
		return result, err
	}
	result.ProviderRef = n.ProviderRef

	status, terminal := paymentdomain.MapProviderStatus(n.ReportedStatus)
	if !terminal {
		result.Outcome = paymentdomain.DeliveryIgnored
		s.log.Debug("payment webhook status ignored",
			zap.String("provider", provider),
			zap.String("provider_ref", n.ProviderRef),
			zap.String("reported_status", n.ReportedStatus),
		)
		return result, s.record(ctx, n, result, payload)
	}

	transition, applyErr := s.paymentSvc.ApplyOutcome(ctx, paymentdomain.Outcome{
		ProviderRef:   n.ProviderRef,
		Status:        status,
		Amount:        n.Amount,
		Currency:      n.Currency,
		PaymentMethod: n.PaymentMethod,
	})
	switch {
	case applyErr == nil:
	case errors.Is(applyErr, paymentdomain.ErrLedgerEntryNotFound):
		result.Outcome = paymentdomain.DeliveryUnknownRef
	case errors.Is(applyErr, paymentdomain.ErrAmountMismatch):
		result.Outcome = paymentdomain.DeliveryAmountMismatch
		s.log.Warn("payment webhook amount mismatch",
			zap.String("provider", provider),
			zap.String("provider_ref", n.ProviderRef),
			zap.String("error", webhookauth.Redact(applyErr.Error(), s.auth.Secrets()...)),
		)
	default:
		s.log.Error("apply payment outcome failed",
			zap.String("provider", provider),
			zap.String("provider_ref", n.ProviderRef),
			zap.String("error", webhookauth.Redact(applyErr.Error(), s.auth.Secrets()...)),
		)
		return result, applyErr
	}

	if applyErr == nil {
		result.Status = transition.Entry.Status
		if transition.Applied {
			result.Outcome = paymentdomain.DeliveryApplied
		} else {
			result.Outcome = paymentdomain.DeliveryAlreadyFinal
			s.log.Info("payment webhook for finalized entry",
				zap.String("provider", provider),
				zap.String("provider_ref", n.ProviderRef),
				zap.String("status", string(transition.Entry.Status)),
			)
		}
	}

	if err := s.record(ctx, n, result, payload); err != nil {
		return result, err
	}
	return result, applyErr
}

func (s *Service) record(ctx context.Context, n *paymentdomain.Notification, result paymentdomain.DeliveryResult, payload []byte) error {
	s.obsMetrics.RecordWebhookDelivery(ctx, result.Provider, result.Outcome, result.MatchedSecret)

	delivery := &paymentdomain.WebhookDelivery{
		ID:             s.genID.Generate(),
		Provider:       result.Provider,
		ProviderRef:    n.ProviderRef,
		EventID:        n.EventID,
		ReportedStatus: n.ReportedStatus,
		MatchedSecret:  result.MatchedSecret,
		Outcome:        result.Outcome,
		Payload:        datatypes.JSON(payload),
		ReceivedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertDelivery(ctx, s.db, delivery); err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}
	return nil
}
