package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk and wire format for operation and payment dates.
const DateLayout = "2006-01-02"

type Client struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"nom"`
	Phone       string    `json:"telephone"`
	Description string    `json:"description,omitempty"`
}

type OperationStatus string

const (
	OperationStatusActive    OperationStatus = "en-cours"
	OperationStatusCompleted OperationStatus = "terminee"
)

// Valid reports whether s is one of the known statuses.
func (s OperationStatus) Valid() bool {
	return s == OperationStatusActive || s == OperationStatusCompleted
}

type Operation struct {
	ID             uuid.UUID       `json:"id"`
	ClientID       uuid.UUID       `json:"client_id"`
	Principal      decimal.Decimal `json:"valeur_marchandise"`
	RatePercent    decimal.Decimal `json:"taux_benefice"`
	DurationMonths decimal.Decimal `json:"duree_mois"`
	CreatedOn      time.Time       `json:"date_creation"`
	Status         OperationStatus `json:"statut"`

	// Cached terms. They always equal accounting.ComputeTerms of the fields above.
	TotalDue          decimal.Decimal `json:"montant_total"`
	ProfitAmount      decimal.Decimal `json:"montant_benefice"`
	InstallmentAmount decimal.Decimal `json:"montant_mensualite"`
}

// IsActive reports whether the operation still accepts payments.
func (o *Operation) IsActive() bool {
	return o.Status == OperationStatusActive
}

type PaymentKind string

const (
	PaymentKindOrdinary    PaymentKind = "ordinaire"
	PaymentKindEarlyPayoff PaymentKind = "anticipe"
)

// Valid reports whether k is one of the known payment kinds.
func (k PaymentKind) Valid() bool {
	return k == PaymentKindOrdinary || k == PaymentKindEarlyPayoff
}

type Payment struct {
	ID          uuid.UUID       `json:"id"`
	OperationID uuid.UUID       `json:"operation_id"`
	Kind        PaymentKind     `json:"type_paiement"`
	Amount      decimal.Decimal `json:"montant"`
	PaidOn      time.Time       `json:"date_paiement"`
}

// OperationFilter narrows GetOperations. Zero fields match everything.
type OperationFilter struct {
	ClientID uuid.UUID
	Status   OperationStatus
}
