package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/riskwatch/internal/history"
	"github.com/mbd888/riskwatch/internal/logging"
	"github.com/mbd888/riskwatch/internal/metrics"
	"github.com/mbd888/riskwatch/internal/traces"
	"github.com/mbd888/riskwatch/internal/transaction"
)

// webhookHandler runs the full pipeline for one inbound transaction:
// validate, score, escalate, record, respond.
func (s *Server) webhookHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if c.ContentType() != "application/json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request must be JSON"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request must be JSON"})
		return
	}

	tx, ok, msg := transaction.Validate(body)
	if !ok {
		logging.L(ctx).Warn("invalid transaction data", "reason", msg)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction data: " + msg})
		return
	}

	ctx, span := traces.StartSpan(ctx, "webhook.process", traces.TransactionID(tx.TransactionID))
	defer span.End()

	logging.L(ctx).Info("processing transaction", "transaction_id", tx.TransactionID)

	result := s.scorer.Score(ctx, tx)
	notification := s.policy.Escalate(ctx, tx, result)

	if err := s.records.Append(ctx, history.NewRecord(tx, result)); err != nil {
		logging.L(ctx).Error("failed to record transaction", "transaction_id", tx.TransactionID, "error", err)
	}
	metrics.TransactionsProcessed.WithLabelValues(string(result.RecommendedAction)).Inc()
	span.SetAttributes(
		traces.RiskScore(result.RiskScore),
		traces.RecommendedAction(string(result.RecommendedAction)),
	)

	resp := gin.H{
		"transaction_id": tx.TransactionID,
		"status":         "processed",
		"risk_analysis":  result,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if notification != nil {
		resp["admin_notification_sent"] = true
		resp["alert_type"] = notification.AlertType
	}

	c.JSON(http.StatusOK, resp)
}

// notificationsHandler returns every flagged transaction, oldest first.
func (s *Server) notificationsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	notifications, err := s.notifications.List(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to list notifications", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if notifications == nil {
		notifications = []*history.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// allTransactionsHandler returns every processed transaction, oldest first.
func (s *Server) allTransactionsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	records, err := s.records.List(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if records == nil {
		records = []*history.TransactionRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"transactions": records})
}
