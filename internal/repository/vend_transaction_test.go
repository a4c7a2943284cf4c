package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/soap-vend/internal/models"
	"github.com/wfunc/soap-vend/internal/vending"
)

func TestCreateAndGetBySessionID(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewVendTransactionRepository(db)
	ctx := context.Background()

	tx := &models.VendTransaction{
		SessionID:    "sess-001",
		TerminalTxID: "10001",
		Outcome:      vending.OutcomeComplete,
		ItemCount:    2,
		TotalCents:   76,
		Total:        0.76,
		Extra:        models.JSONMap{"description": "2 items: Hand, Laundry"},
		Items: []models.VendLineItem{
			{ProductID: "hand_soap", ProductName: "Hand Soap", Quantity: 2.5, Unit: "oz", Price: 0.38},
			{ProductID: "laundry_soap", ProductName: "Laundry Soap", Quantity: 3.2, Unit: "oz", Price: 0.38},
		},
	}
	require.NoError(t, repo.Create(ctx, tx))
	assert.NotZero(t, tx.ID)

	got, err := repo.GetBySessionID(ctx, "sess-001")
	require.NoError(t, err)
	assert.Equal(t, "10001", got.TerminalTxID)
	assert.Equal(t, vending.OutcomeComplete, got.Outcome)
	assert.Equal(t, int64(76), got.TotalCents)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "hand_soap", got.Items[0].ProductID)
	assert.Equal(t, 3.2, got.Items[1].Quantity)
	assert.Equal(t, "2 items: Hand, Laundry", got.Extra["description"])
}

func TestGetBySessionIDNotFound(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewVendTransactionRepository(db)

	_, err := repo.GetBySessionID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewVendTransactionRepository(db)
	ctx := context.Background()

	now := time.Now()
	old := &models.VendTransaction{SessionID: "sess-old", Outcome: vending.OutcomeComplete, TotalCents: 38, Total: 0.38}
	old.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, old))

	recent := &models.VendTransaction{SessionID: "sess-new", Outcome: vending.OutcomeCancelled}
	recent.CreatedAt = now
	require.NoError(t, repo.Create(ctx, recent))

	got, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-new", got.SessionID)
}

func TestListByOutcome(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewVendTransactionRepository(db)
	ctx := context.Background()

	for i, outcome := range []string{
		vending.OutcomeComplete,
		vending.OutcomeComplete,
		vending.OutcomeFailed,
	} {
		tx := &models.VendTransaction{
			SessionID:  "sess-" + string(rune('a'+i)),
			Outcome:    outcome,
			TotalCents: int64(100 * (i + 1)),
		}
		require.NoError(t, repo.Create(ctx, tx))
	}

	p := NewPagination(1, 10)
	txs, err := repo.ListByOutcome(ctx, vending.OutcomeComplete, p)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, int64(2), p.Total)

	count, err := repo.CountByOutcome(ctx, vending.OutcomeFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSumCompletedCents(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewVendTransactionRepository(db)
	ctx := context.Background()

	now := time.Now()

	recent := &models.VendTransaction{SessionID: "s1", Outcome: vending.OutcomeComplete, TotalCents: 76}
	recent.CreatedAt = now
	require.NoError(t, repo.Create(ctx, recent))

	stale := &models.VendTransaction{SessionID: "s2", Outcome: vending.OutcomeComplete, TotalCents: 38}
	stale.CreatedAt = now.Add(-48 * time.Hour)
	require.NoError(t, repo.Create(ctx, stale))

	failed := &models.VendTransaction{SessionID: "s3", Outcome: vending.OutcomeFailed, TotalCents: 50}
	failed.CreatedAt = now
	require.NoError(t, repo.Create(ctx, failed))

	total, err := repo.SumCompletedCents(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(76), total)
}

func TestSessionRecorder(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewVendTransactionRepository(db)
	recorder := NewSessionRecorder(repo)

	items := []vending.LineItem{
		{ProductID: "hand_soap", ProductName: "Hand Soap", Quantity: 2.5, Unit: "oz", Price: 0.38},
		{ProductID: "laundry_soap", ProductName: "Laundry Soap", Quantity: 3.2, Unit: "oz", Price: 0.38},
	}
	err := recorder.RecordSession("sess-rec", items, 0.76, "20002", vending.OutcomeComplete)
	require.NoError(t, err)

	got, err := repo.GetBySessionID(context.Background(), "sess-rec")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ItemCount)
	assert.Equal(t, int64(76), got.TotalCents)
	assert.Equal(t, "20002", got.TerminalTxID)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Laundry Soap", got.Items[1].ProductName)
}

func TestPaginationBounds(t *testing.T) {
	p := NewPagination(0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 500)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 200, p.Offset())
}
