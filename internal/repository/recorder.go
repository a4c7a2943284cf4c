package repository

import (
	"context"
	"math"
	"time"

	"github.com/wfunc/soap-vend/internal/models"
	"github.com/wfunc/soap-vend/internal/vending"
)

// SessionRecorder 会话结果落库适配器
type SessionRecorder struct {
	repo    *VendTransactionRepository
	timeout time.Duration
}

// NewSessionRecorder 创建会话结果落库适配器
func NewSessionRecorder(repo *VendTransactionRepository) *SessionRecorder {
	return &SessionRecorder{
		repo:    repo,
		timeout: 5 * time.Second,
	}
}

// RecordSession 保存一次售卖会话及其明细
func (s *SessionRecorder) RecordSession(sessionID string, items []vending.LineItem, total float64, terminalTxID, outcome string) error {
	tx := &models.VendTransaction{
		SessionID:    sessionID,
		TerminalTxID: terminalTxID,
		Outcome:      outcome,
		ItemCount:    len(items),
		TotalCents:   int64(math.Round(total * 100)),
		Total:        total,
	}

	for _, item := range items {
		tx.Items = append(tx.Items, models.VendLineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			Price:       item.Price,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.repo.Create(ctx, tx)
}
