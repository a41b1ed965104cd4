package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/3244536/Magest/pkg/ledger"
	"github.com/3244536/Magest/pkg/models"
	"github.com/3244536/Magest/pkg/store"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"), zap.NewNop())
	require.NoError(t, err, "Failed to create store")
	t.Cleanup(func() { s.Close() })

	server := NewServer(s, zap.NewNop())
	return server, server.routes()
}

func do(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createClient(t *testing.T, router *mux.Router) models.Client {
	t.Helper()
	rr := do(t, router, "POST", "/clients", map[string]string{"nom": "Awa", "telephone": "0711"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var client models.Client
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &client))
	return client
}

func createOperation(t *testing.T, router *mux.Router, clientID string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, "POST", "/operations", map[string]any{
		"client_id":          clientID,
		"valeur_marchandise": 1580000,
		"taux_benefice":      10,
		"duree_mois":         6.5,
		"date_creation":      "2025-01-01",
	})
}

func TestAPI_CreateClientValidation(t *testing.T) {
	_, router := setupTestServer(t)

	rr := do(t, router, "POST", "/clients", map[string]string{"nom": "Awa"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "telephone")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/clients", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CreateAndGetOperation(t *testing.T) {
	_, router := setupTestServer(t)
	client := createClient(t, router)

	rr := createOperation(t, router, client.ID.String())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var op models.Operation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &op))
	assert.True(t, op.TotalDue.Equal(decimal.NewFromInt(1738000)))
	assert.Equal(t, models.OperationStatusActive, op.Status)

	rr = createOperation(t, router, client.ID.String())
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "GET", "/operations/"+op.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary ledger.OperationSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, op.ID, summary.Operation.ID)
	assert.NotNil(t, summary.NextDueDate)

	rr = do(t, router, "GET", "/operations/"+op.ID.String()+"/early-payoff", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var payoff map[string]decimal.Decimal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payoff))
	assert.True(t, payoff["montant"].Equal(decimal.NewFromInt(158000)))
}

func TestAPI_RecordPaymentSettles(t *testing.T) {
	_, router := setupTestServer(t)
	client := createClient(t, router)

	rr := do(t, router, "POST", "/operations", map[string]any{
		"client_id":          client.ID.String(),
		"valeur_marchandise": "800000",
		"taux_benefice":      "25",
		"duree_mois":         "4",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var op models.Operation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &op))

	path := "/operations/" + op.ID.String() + "/payments"
	rr = do(t, router, "POST", path, map[string]any{"montant": 400000, "date_paiement": "2025-02-01"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var payment models.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payment))
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(400000)))
	assert.Equal(t, models.PaymentKindOrdinary, payment.Kind)

	rr = do(t, router, "GET", "/clients/"+client.ID.String()+"/payments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history []models.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Len(t, history, 1)

	rr = do(t, router, "POST", path, map[string]any{"montant": 600000, "type_paiement": "anticipe"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, router, "POST", path, map[string]any{"montant": 1})
	assert.Equal(t, http.StatusConflict, rr.Code, "completed operations reject payments")

	rr = do(t, router, "GET", "/dashboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []ledger.DashboardEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	assert.Empty(t, entries)
}

func TestAPI_BadRequests(t *testing.T) {
	_, router := setupTestServer(t)
	client := createClient(t, router)

	rr := do(t, router, "GET", "/operations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", "/clients/"+client.ID.String()+"0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = createOperation(t, router, "6f1c5a1e-0000-4000-8000-000000000000")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "POST", "/operations", map[string]any{
		"client_id":          client.ID.String(),
		"valeur_marchandise": 0,
		"taux_benefice":      10,
		"duree_mois":         2,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", "/operations", map[string]any{
		"client_id":          client.ID.String(),
		"valeur_marchandise": 10,
		"taux_benefice":      10,
		"duree_mois":         2,
		"date_creation":      "01/02/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_DeleteCascade(t *testing.T) {
	server, router := setupTestServer(t)
	client := createClient(t, router)

	rr := createOperation(t, router, client.ID.String())
	require.Equal(t, http.StatusCreated, rr.Code)
	var op models.Operation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &op))

	rr = do(t, router, "POST", "/operations/"+op.ID.String()+"/payments", map[string]any{"montant": 1000})
	require.Equal(t, http.StatusCreated, rr.Code)
	var payment models.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payment))

	rr = do(t, router, "DELETE", "/payments/"+payment.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, router, "DELETE", "/clients/"+client.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, router, "DELETE", "/clients/"+client.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code, "delete is idempotent")

	rr = do(t, router, "GET", "/clients/"+client.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	_, err := server.storage.GetOperation(context.Background(), op.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAPI_DatesUseDayLayout(t *testing.T) {
	_, router := setupTestServer(t)
	client := createClient(t, router)

	rr := createOperation(t, router, client.ID.String())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"date_creation":"2025-01-01"`)
	var op models.Operation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &op))

	rr = do(t, router, "POST", "/operations/"+op.ID.String()+"/payments", map[string]any{"montant": 1000, "date_paiement": "2025-02-03"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"date_paiement":"2025-02-03"`)

	rr = do(t, router, "GET", "/operations/"+op.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Regexp(t, `"prochaine_echeance":"\d{4}-\d{2}-\d{2}"`, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "T00:00:00")
}

func TestAPI_PaymentAndOperationReads(t *testing.T) {
	_, router := setupTestServer(t)
	client := createClient(t, router)

	rr := createOperation(t, router, client.ID.String())
	require.Equal(t, http.StatusCreated, rr.Code)
	var op models.Operation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &op))

	rr = do(t, router, "POST", "/operations/"+op.ID.String()+"/payments", map[string]any{"montant": 5000})
	require.Equal(t, http.StatusCreated, rr.Code)
	var payment models.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payment))

	rr = do(t, router, "GET", "/payments/"+payment.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got models.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, payment.ID, got.ID)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(5000)))

	rr = do(t, router, "GET", "/operations/"+op.ID.String()+"/payments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var payments []models.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payments))
	assert.Len(t, payments, 1)

	rr = do(t, router, "GET", "/clients/"+client.ID.String()+"/operations?statut=en-cours", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ops []models.Operation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, op.ID, ops[0].ID)

	rr = do(t, router, "GET", "/clients/"+client.ID.String()+"/operations?statut=terminee", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ops = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ops))
	assert.Empty(t, ops)

	rr = do(t, router, "GET", "/clients/"+client.ID.String()+"/operations?statut=archived", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", "/payments/6f1c5a1e-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, router, "GET", "/operations/6f1c5a1e-0000-4000-8000-000000000000/payments", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
