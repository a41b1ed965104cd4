package store

import (
	"context"

	"github.com/3244536/Magest/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentResult is the position of an operation right after ApplyPayment.
type PaymentResult struct {
	TotalPaid decimal.Decimal
	TotalDue  decimal.Decimal
	Settled   bool
}

// Storage defines the persistence contract for clients, operations and payments.
//
// Inserts assign and return a new id. Deletes are idempotent and cascade to
// owned records. Get* by id returns a *models.NotFoundError for a missing row.
// InsertOperation returns models.ErrOperationConflict when the client already
// has an active operation and the new one is active too. ApplyPayment records
// a payment and settles its operation atomically.
type Storage interface {
	InsertClient(ctx context.Context, client *models.Client) (uuid.UUID, error)
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	GetClients(ctx context.Context) ([]*models.Client, error)
	DeleteClientCascade(ctx context.Context, id uuid.UUID) error

	InsertOperation(ctx context.Context, op *models.Operation) (uuid.UUID, error)
	GetOperation(ctx context.Context, id uuid.UUID) (*models.Operation, error)
	GetOperations(ctx context.Context, filter models.OperationFilter) ([]*models.Operation, error)
	UpdateOperationStatus(ctx context.Context, id uuid.UUID, status models.OperationStatus) error
	DeleteOperationCascade(ctx context.Context, id uuid.UUID) error

	InsertPayment(ctx context.Context, payment *models.Payment) (uuid.UUID, error)
	ApplyPayment(ctx context.Context, payment *models.Payment) (*PaymentResult, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetPayments(ctx context.Context, operationID uuid.UUID) ([]*models.Payment, error)
	DeletePayment(ctx context.Context, id uuid.UUID) error

	Close() error
}
