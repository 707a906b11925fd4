// Package escalation applies the high-risk-jurisdiction override and
// decides whether a scored transaction is flagged for administrators.
package escalation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mbd888/riskwatch/internal/history"
	"github.com/mbd888/riskwatch/internal/idgen"
	"github.com/mbd888/riskwatch/internal/metrics"
	"github.com/mbd888/riskwatch/internal/risk"
	"github.com/mbd888/riskwatch/internal/transaction"
)

// jurisdictionFactorPrefix guards against stacking duplicate factors when
// the model already named a high-risk country.
const jurisdictionFactorPrefix = "Transaction involves high-risk country"

// Emitter pushes a notification to live subscribers. Implementations must
// not block; delivery is best effort.
type Emitter interface {
	BroadcastNotification(n *history.Notification)
}

// Policy holds the escalation rule and its notification sinks.
type Policy struct {
	notifications history.NotificationStore
	emitter       Emitter
	logger        *slog.Logger
}

// NewPolicy creates an escalation policy. emitter may be nil when no live
// channel is attached.
func NewPolicy(notifications history.NotificationStore, emitter Emitter, logger *slog.Logger) *Policy {
	return &Policy{
		notifications: notifications,
		emitter:       emitter,
		logger:        logger,
	}
}

// Escalate applies the jurisdiction override to result in place, then
// flags the transaction when the final score crosses the notify threshold.
//
// Returns the stored notification, or nil when the transaction is not
// flagged. Broadcast failures never propagate to the caller.
func (p *Policy) Escalate(ctx context.Context, tx *transaction.Transaction, result *risk.Result) *history.Notification {
	cc := tx.Customer.Country
	pc := tx.PaymentMethod.CountryOfIssue

	if risk.IsHighRisk(cc) || risk.IsHighRisk(pc) {
		if result.RiskScore < risk.JurisdictionFloor {
			result.RiskScore = risk.JurisdictionFloor
		}
		country := cc
		if !risk.IsHighRisk(cc) {
			country = pc
		}
		if !hasJurisdictionFactor(result.RiskFactors) {
			result.RiskFactors = append(result.RiskFactors, jurisdictionFactorPrefix+": "+country)
			result.RecommendedAction = risk.ActionBlock
		}
	}

	if result.RiskScore < risk.NotifyThreshold {
		return nil
	}

	n := &history.Notification{
		ID:                    idgen.WithPrefix("ntf_"),
		TransactionID:         tx.TransactionID,
		Timestamp:             tx.Timestamp,
		Amount:                float64(tx.Amount),
		Currency:              tx.Currency,
		AlertType:             history.AlertTypeHighRisk,
		Status:                history.StatusFlagged,
		AdminNotificationSent: true,
		RiskAnalysis:          result,
		Customer:              tx.Customer,
		PaymentMethod:         tx.PaymentMethod,
		Merchant:              tx.Merchant,
		TransactionDetails:    tx,
	}

	p.logger.Warn("high risk transaction detected",
		"transaction_id", n.TransactionID,
		"risk_score", result.RiskScore,
		"action", result.RecommendedAction,
	)

	if err := p.notifications.Append(ctx, n); err != nil {
		p.logger.Error("failed to store notification", "transaction_id", n.TransactionID, "error", err)
	}
	metrics.NotificationsEmitted.Inc()

	if p.emitter != nil {
		p.emitter.BroadcastNotification(n)
	}

	return n
}

func hasJurisdictionFactor(factors []string) bool {
	for _, f := range factors {
		if strings.HasPrefix(f, jurisdictionFactorPrefix) {
			return true
		}
	}
	return false
}
