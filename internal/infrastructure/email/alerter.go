package email

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/storesync/storesync/internal/infrastructure/cache"
	"github.com/storesync/storesync/internal/shared/logger"
)

// PlanNotFoundAlert describes a store product with no catalog entry.
type PlanNotFoundAlert struct {
	Platform      string
	Environment   string
	ProductID     string
	TransactionID string
	UserID        uint
	OccurredAt    time.Time
}

// CooldownGate limits repeated alerts. cache.AlertDeduplicator satisfies it.
type CooldownGate interface {
	TryAcquireAlertLock(ctx context.Context, alertType cache.AlertType, subject string, ttl time.Duration) (bool, error)
}

// OperatorAlerter e-mails operators about conditions that need a human,
// at most once per cooldown per subject.
type OperatorAlerter struct {
	smtp       *SMTPEmailService
	recipients []string
	gate       CooldownGate
	cooldown   time.Duration
	logger     logger.Interface
}

func NewOperatorAlerter(smtp *SMTPEmailService, recipients []string, gate CooldownGate, cooldown time.Duration, log logger.Interface) *OperatorAlerter {
	return &OperatorAlerter{
		smtp:       smtp,
		recipients: recipients,
		gate:       gate,
		cooldown:   cooldown,
		logger:     log,
	}
}

func (a *OperatorAlerter) SendPlanNotFound(ctx context.Context, alert PlanNotFoundAlert) error {
	subject := alert.Platform + ":" + alert.ProductID
	if !a.acquire(ctx, cache.AlertTypePlanNotFound, subject) {
		a.logger.Debugw("plan not found alert suppressed", "subject", subject)
		return nil
	}

	title := fmt.Sprintf("[storesync] No plan for %s product %s", alert.Platform, alert.ProductID)
	plain := fmt.Sprintf(`A store notification referenced a product that is not in the plan catalog.

Platform:       %s
Environment:    %s
Product id:     %s
Transaction id: %s
User id:        %d
Occurred at:    %s

The subscription was not updated. Add the product to the catalog and run
"storesync reconcile" for the user.`,
		alert.Platform, alert.Environment, alert.ProductID, alert.TransactionID, alert.UserID,
		alert.OccurredAt.UTC().Format(time.RFC3339))
	htmlBody := "<html><body><pre>" + html.EscapeString(plain) + "</pre></body></html>"

	if err := a.smtp.sendEmail(a.recipients, title, htmlBody, plain); err != nil {
		a.logger.Errorw("failed to send plan not found alert", "subject", subject, "error", err)
		return err
	}
	a.logger.Infow("plan not found alert sent", "subject", subject, "recipients", len(a.recipients))
	return nil
}

// acquire sends when the gate is missing or broken.
func (a *OperatorAlerter) acquire(ctx context.Context, alertType cache.AlertType, subject string) bool {
	if a.gate == nil {
		return true
	}
	ok, err := a.gate.TryAcquireAlertLock(ctx, alertType, subject, a.cooldown)
	if err != nil {
		a.logger.Warnw("alert cooldown unavailable", "subject", subject, "error", err)
		return true
	}
	return ok
}
