package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/soap-vend/internal/models"
	"github.com/wfunc/soap-vend/internal/repository"
	"github.com/wfunc/soap-vend/internal/vending"
)

func newTestAPI(t *testing.T) (*repository.VendTransactionRepository, http.Handler) {
	db := repository.SetupTestDB(t)
	repo := repository.NewVendTransactionRepository(db)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewTransactionAPI(repo).RegisterRoutes(engine)
	return repo, engine
}

func seedTransaction(t *testing.T, repo *repository.VendTransactionRepository, sessionID, outcome string, cents int64) {
	tx := &models.VendTransaction{
		SessionID:  sessionID,
		Outcome:    outcome,
		ItemCount:  1,
		TotalCents: cents,
		Total:      float64(cents) / 100,
		Items: []models.VendLineItem{
			{ProductID: "hand_soap", ProductName: "Hand Soap", Quantity: 2.5, Unit: "oz", Price: float64(cents) / 100},
		},
	}
	require.NoError(t, repo.Create(context.Background(), tx))
}

func doRequest(t *testing.T, handler http.Handler, path string) (int, map[string]interface{}) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	handler.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestListTransactions(t *testing.T) {
	repo, handler := newTestAPI(t)
	seedTransaction(t, repo, "sess-a", vending.OutcomeComplete, 38)
	seedTransaction(t, repo, "sess-b", vending.OutcomeFailed, 76)

	code, body := doRequest(t, handler, "/api/v1/transactions")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["total"])

	code, body = doRequest(t, handler, "/api/v1/transactions?outcome=failed")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])
}

func TestGetBySession(t *testing.T) {
	repo, handler := newTestAPI(t)
	seedTransaction(t, repo, "sess-a", vending.OutcomeComplete, 38)

	code, body := doRequest(t, handler, "/api/v1/transactions/sess-a")
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "sess-a", data["session_id"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)

	code, _ = doRequest(t, handler, "/api/v1/transactions/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetLatest(t *testing.T) {
	repo, handler := newTestAPI(t)

	code, _ := doRequest(t, handler, "/api/v1/transactions/latest")
	assert.Equal(t, http.StatusNotFound, code)

	seedTransaction(t, repo, "sess-a", vending.OutcomeComplete, 38)

	code, body := doRequest(t, handler, "/api/v1/transactions/latest")
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "sess-a", data["session_id"])
}

func TestGetStats(t *testing.T) {
	repo, handler := newTestAPI(t)
	seedTransaction(t, repo, "sess-a", vending.OutcomeComplete, 38)
	seedTransaction(t, repo, "sess-b", vending.OutcomeComplete, 76)
	seedTransaction(t, repo, "sess-c", vending.OutcomeCancelled, 0)

	code, body := doRequest(t, handler, "/api/v1/transactions/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(114), body["completed_cents"])
	assert.Equal(t, float64(2), body["completed"])
	assert.Equal(t, float64(1), body["cancelled"])
	assert.Equal(t, float64(0), body["failed"])
}
