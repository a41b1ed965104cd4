package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3244536/Magest/pkg/accounting"
	"github.com/3244536/Magest/pkg/models"
	"github.com/3244536/Magest/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger handles the business rules for clients, operations and payments.
// It is the only writer of operation and payment records.
type Ledger struct {
	storage store.Storage
	log     *zap.Logger
	now     func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		storage: s,
		log:     log.Named("ledger"),
		now:     time.Now,
	}
}

func (l *Ledger) today() time.Time {
	y, m, d := l.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateClient validates and stores a new client.
func (l *Ledger) CreateClient(ctx context.Context, name, phone, description string) (*models.Client, error) {
	client := &models.Client{
		Name:        strings.TrimSpace(name),
		Phone:       strings.TrimSpace(phone),
		Description: strings.TrimSpace(description),
	}
	if client.Name == "" {
		return nil, &models.ValidationError{Field: "nom", Message: "is required"}
	}
	if client.Phone == "" {
		return nil, &models.ValidationError{Field: "telephone", Message: "is required"}
	}

	if _, err := l.storage.InsertClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to store client: %w", err)
	}
	l.log.Info("client created", zap.Stringer("client_id", client.ID), zap.String("name", client.Name))
	return client, nil
}

// GetClient retrieves a client by its ID.
func (l *Ledger) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return l.storage.GetClient(ctx, id)
}

// ListClients retrieves all clients.
func (l *Ledger) ListClients(ctx context.Context) ([]*models.Client, error) {
	return l.storage.GetClients(ctx)
}

// DeleteClient removes a client with all of its operations and their payments.
func (l *Ledger) DeleteClient(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeleteClientCascade(ctx, id); err != nil {
		return err
	}
	l.log.Info("client deleted", zap.Stringer("client_id", id))
	return nil
}

// CreateOperationInput carries the terms of a new operation.
// Status defaults to Active; passing Completed records an already settled
// operation and skips the active-operation check.
type CreateOperationInput struct {
	ClientID       uuid.UUID
	Principal      decimal.Decimal
	RatePercent    decimal.Decimal
	DurationMonths decimal.Decimal
	CreatedOn      time.Time
	Status         models.OperationStatus
}

func (in *CreateOperationInput) validate() error {
	if in.ClientID == uuid.Nil {
		return &models.ValidationError{Field: "client_id", Message: "is required"}
	}
	if !in.Principal.IsPositive() {
		return &models.ValidationError{Field: "valeur_marchandise", Message: "must be positive"}
	}
	if !in.RatePercent.IsPositive() {
		return &models.ValidationError{Field: "taux_benefice", Message: "must be positive"}
	}
	if !in.DurationMonths.IsPositive() {
		return &models.ValidationError{Field: "duree_mois", Message: "must be positive"}
	}
	if in.Status != "" && !in.Status.Valid() {
		return &models.ValidationError{Field: "statut", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	return nil
}

// CreateOperation opens a new operation for a client. It fails with
// models.ErrOperationConflict if the client already has an active operation.
func (l *Ledger) CreateOperation(ctx context.Context, in CreateOperationInput) (*models.Operation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = models.OperationStatusActive
	}
	if in.CreatedOn.IsZero() {
		in.CreatedOn = l.today()
	}

	if _, err := l.storage.GetClient(ctx, in.ClientID); err != nil {
		return nil, err
	}

	if in.Status == models.OperationStatusActive {
		active, err := l.storage.GetOperations(ctx, models.OperationFilter{
			ClientID: in.ClientID,
			Status:   models.OperationStatusActive,
		})
		if err != nil {
			return nil, err
		}
		if len(active) > 0 {
			return nil, models.ErrOperationConflict
		}
	}

	terms, err := accounting.ComputeTerms(in.Principal, in.RatePercent, in.DurationMonths)
	if err != nil {
		return nil, err
	}

	op := &models.Operation{
		ClientID:          in.ClientID,
		Principal:         in.Principal,
		RatePercent:       in.RatePercent,
		DurationMonths:    in.DurationMonths,
		CreatedOn:         in.CreatedOn,
		Status:            in.Status,
		TotalDue:          terms.TotalDue,
		ProfitAmount:      terms.ProfitAmount,
		InstallmentAmount: terms.InstallmentAmount,
	}

	// The store repeats the active check inside its own transaction.
	if _, err := l.storage.InsertOperation(ctx, op); err != nil {
		if errors.Is(err, models.ErrOperationConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store operation: %w", err)
	}

	l.log.Info("operation created",
		zap.Stringer("operation_id", op.ID),
		zap.Stringer("client_id", op.ClientID),
		zap.String("status", string(op.Status)),
		zap.String("total_due", op.TotalDue.String()),
		zap.String("installment", op.InstallmentAmount.StringFixed(2)),
	)
	return op, nil
}

// GetOperation retrieves an operation by its ID.
func (l *Ledger) GetOperation(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	return l.storage.GetOperation(ctx, id)
}

// ListOperations retrieves operations matching filter.
func (l *Ledger) ListOperations(ctx context.Context, filter models.OperationFilter) ([]*models.Operation, error) {
	return l.storage.GetOperations(ctx, filter)
}

// DeleteOperation removes an operation and its payments.
func (l *Ledger) DeleteOperation(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeleteOperationCascade(ctx, id); err != nil {
		return err
	}
	l.log.Info("operation deleted", zap.Stringer("operation_id", id))
	return nil
}

// RecordPayment applies a payment to an active operation and marks the
// operation Completed once its payments cover the total due. Overpayment is
// recorded as is. Payments against a Completed operation are rejected with
// models.ErrOperationCompleted.
func (l *Ledger) RecordPayment(ctx context.Context, operationID uuid.UUID, kind models.PaymentKind, amount decimal.Decimal, paidOn time.Time) (*models.Payment, error) {
	if !amount.IsPositive() {
		return nil, &models.ValidationError{Field: "montant", Message: "must be positive"}
	}
	if kind == "" {
		kind = models.PaymentKindOrdinary
	}
	if !kind.Valid() {
		return nil, &models.ValidationError{Field: "type_paiement", Message: fmt.Sprintf("unknown payment kind %q", kind)}
	}
	if paidOn.IsZero() {
		paidOn = l.today()
	}

	op, err := l.storage.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if !op.IsActive() {
		l.log.Warn("payment rejected: operation is completed",
			zap.Stringer("operation_id", op.ID),
			zap.String("amount", amount.String()))
		return nil, models.ErrOperationCompleted
	}

	payment := &models.Payment{
		OperationID: op.ID,
		Kind:        kind,
		Amount:      amount,
		PaidOn:      paidOn,
	}
	result, err := l.storage.ApplyPayment(ctx, payment)
	if err != nil {
		if errors.Is(err, models.ErrOperationCompleted) {
			l.log.Warn("payment rejected: operation is completed",
				zap.Stringer("operation_id", op.ID),
				zap.String("amount", amount.String()))
			return nil, err
		}
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	if result.Settled {
		l.log.Info("operation settled",
			zap.Stringer("operation_id", op.ID),
			zap.String("total_paid", result.TotalPaid.String()),
			zap.String("total_due", result.TotalDue.String()))
	}

	return payment, nil
}

// GetPayment retrieves a payment by its ID.
func (l *Ledger) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return l.storage.GetPayment(ctx, id)
}

// ListPayments retrieves the payments of an existing operation.
func (l *Ledger) ListPayments(ctx context.Context, operationID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetOperation(ctx, operationID); err != nil {
		return nil, err
	}
	return l.storage.GetPayments(ctx, operationID)
}

// DeletePayment removes a payment. The operation status is left as is, so a
// Completed operation stays Completed.
func (l *Ledger) DeletePayment(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeletePayment(ctx, id); err != nil {
		return err
	}
	l.log.Info("payment deleted", zap.Stringer("payment_id", id))
	return nil
}

// SuggestEarlyPayoff returns the conventional early payoff amount for an
// operation, its profit amount. Callers may record a different amount.
func (l *Ledger) SuggestEarlyPayoff(ctx context.Context, operationID uuid.UUID) (decimal.Decimal, error) {
	op, err := l.storage.GetOperation(ctx, operationID)
	if err != nil {
		return decimal.Zero, err
	}
	return op.ProfitAmount, nil
}
