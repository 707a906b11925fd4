// Package history holds the in-memory stores behind the admin read APIs.
//
// Two append-only sequences are kept for the lifetime of the process:
// notifications (flagged transactions only) and transaction records
// (every successfully processed transaction). Neither is bounded or
// evicted; this is a demonstration-scale system, not a data store.
package history

import (
	"context"
	"sync"

	"github.com/mbd888/riskwatch/internal/risk"
	"github.com/mbd888/riskwatch/internal/transaction"
)

// Notification markers.
const (
	AlertTypeHighRisk = "high_risk_transaction"
	StatusFlagged     = "flagged"
)

// Notification is the denormalized admin view of a flagged transaction.
// Created once by the escalation policy; never mutated afterwards.
type Notification struct {
	ID                    string                     `json:"id"`
	TransactionID         string                     `json:"transaction_id"`
	Timestamp             string                     `json:"timestamp"`
	Amount                float64                    `json:"amount"`
	Currency              string                     `json:"currency"`
	AlertType             string                     `json:"alert_type"`
	Status                string                     `json:"status"`
	AdminNotificationSent bool                       `json:"admin_notification_sent"`
	RiskAnalysis          *risk.Result               `json:"risk_analysis"`
	Customer              transaction.Customer       `json:"customer"`
	PaymentMethod         transaction.PaymentMethod  `json:"payment_method"`
	Merchant              transaction.Merchant       `json:"merchant"`
	TransactionDetails    *transaction.Transaction   `json:"transaction_details"`
}

// TransactionRecord is the historical entry appended for every processed
// transaction, flagged or not.
type TransactionRecord struct {
	TransactionID string                    `json:"transaction_id"`
	Timestamp     string                    `json:"timestamp"`
	Amount        float64                   `json:"amount"`
	Currency      string                    `json:"currency"`
	RiskAnalysis  *risk.Result              `json:"risk_analysis"`
	Customer      transaction.Customer      `json:"customer"`
	PaymentMethod transaction.PaymentMethod `json:"payment_method"`
	Merchant      transaction.Merchant      `json:"merchant"`
}

// NotificationStore is an append-only sequence of notifications.
type NotificationStore interface {
	Append(ctx context.Context, n *Notification) error
	List(ctx context.Context) ([]*Notification, error)
	Len(ctx context.Context) (int, error)
}

// RecordStore is an append-only sequence of transaction records.
type RecordStore interface {
	Append(ctx context.Context, r *TransactionRecord) error
	List(ctx context.Context) ([]*TransactionRecord, error)
}

// MemoryNotificationStore is the in-process NotificationStore.
// Safe for concurrent appends and reads; List returns a snapshot.
type MemoryNotificationStore struct {
	mu            sync.RWMutex
	notifications []*Notification
}

// NewMemoryNotificationStore creates an empty notification store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{}
}

func (m *MemoryNotificationStore) Append(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *MemoryNotificationStore) List(ctx context.Context) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Notification, len(m.notifications))
	copy(out, m.notifications)
	return out, nil
}

func (m *MemoryNotificationStore) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifications), nil
}

// MemoryRecordStore is the in-process RecordStore.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records []*TransactionRecord
}

// NewMemoryRecordStore creates an empty record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

func (m *MemoryRecordStore) Append(ctx context.Context, r *TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *MemoryRecordStore) List(ctx context.Context) ([]*TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TransactionRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// NewRecord builds the historical entry for a processed transaction.
func NewRecord(tx *transaction.Transaction, result *risk.Result) *TransactionRecord {
	return &TransactionRecord{
		TransactionID: tx.TransactionID,
		Timestamp:     tx.Timestamp,
		Amount:        float64(tx.Amount),
		Currency:      tx.Currency,
		RiskAnalysis:  result,
		Customer:      tx.Customer,
		PaymentMethod: tx.PaymentMethod,
		Merchant:      tx.Merchant,
	}
}
