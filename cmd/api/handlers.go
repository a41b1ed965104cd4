package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/3244536/Magest/pkg/ledger"
	"github.com/3244536/Magest/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps ledger error kinds to HTTP status codes. Anything that is
// not a client error is logged and reported as 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if !models.IsClientError(err) {
		s.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	resp := errorResponse{Error: err.Error()}
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		resp.Field = vErr.Field
	}

	status := http.StatusBadRequest
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrOperationConflict), errors.Is(err, models.ErrOperationCompleted):
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, &models.ValidationError{Field: "id", Message: "is not a valid id"}
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// parseDate accepts an empty string, which the ledger replaces with today.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Message: "must be YYYY-MM-DD"}
	}
	return t, nil
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ledger.ListClients(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"nom"`
		Phone       string `json:"telephone"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	client, err := s.ledger.CreateClient(r.Context(), req.Name, req.Phone, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	client, err := s.ledger.GetClient(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.DeleteClient(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clientPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payments, err := s.ledger.ClientPayments(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// clientOperationsHandler lists one client's operations, optionally narrowed
// by ?statut=.
func (s *Server) clientOperationsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := models.OperationStatus(r.URL.Query().Get("statut"))
	if status != "" && !status.Valid() {
		s.writeError(w, &models.ValidationError{Field: "statut", Message: "unknown status"})
		return
	}
	if _, err := s.ledger.GetClient(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	ops, err := s.ledger.ListOperations(r.Context(), models.OperationFilter{ClientID: id, Status: status})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) listOperationsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := s.ledger.OperationsByClient(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) createOperationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID       uuid.UUID              `json:"client_id"`
		Principal      decimal.Decimal        `json:"valeur_marchandise"`
		RatePercent    decimal.Decimal        `json:"taux_benefice"`
		DurationMonths decimal.Decimal        `json:"duree_mois"`
		CreatedOn      string                 `json:"date_creation"`
		Status         models.OperationStatus `json:"statut"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	created, err := parseDate("date_creation", req.CreatedOn)
	if err != nil {
		s.writeError(w, err)
		return
	}

	op, err := s.ledger.CreateOperation(r.Context(), ledger.CreateOperationInput{
		ClientID:       req.ClientID,
		Principal:      req.Principal,
		RatePercent:    req.RatePercent,
		DurationMonths: req.DurationMonths,
		CreatedOn:      created,
		Status:         req.Status,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

func (s *Server) getOperationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.ledger.GetOperationSummary(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) deleteOperationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.DeleteOperation(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) earlyPayoffHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := s.ledger.SuggestEarlyPayoff(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"montant": amount})
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req struct {
		Kind   models.PaymentKind `json:"type_paiement"`
		Amount decimal.Decimal    `json:"montant"`
		PaidOn string             `json:"date_paiement"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	paidOn, err := parseDate("date_paiement", req.PaidOn)
	if err != nil {
		s.writeError(w, err)
		return
	}

	payment, err := s.ledger.RecordPayment(r.Context(), id, req.Kind, req.Amount, paidOn)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) getPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payment, err := s.ledger.GetPayment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (s *Server) deletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.DeletePayment(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
