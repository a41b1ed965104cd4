package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/3244536/Magest/pkg/accounting"
	"github.com/3244536/Magest/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationSummary is an operation with its payment position.
// NextDueDate is nil once the operation is settled.
type OperationSummary struct {
	Operation   *models.Operation `json:"operation"`
	TotalPaid   decimal.Decimal   `json:"total_paye"`
	Remaining   decimal.Decimal   `json:"reste_a_payer"`
	Settled     bool              `json:"solde"`
	NextDueDate *models.Date      `json:"prochaine_echeance,omitempty"`
}

// DashboardEntry is one active operation as shown on the dashboard.
type DashboardEntry struct {
	Client *models.Client `json:"client"`
	OperationSummary
}

// ClientOperations groups a client's operations in creation order.
type ClientOperations struct {
	Client     *models.Client      `json:"client"`
	Operations []*models.Operation `json:"operations"`
}

func (l *Ledger) summarize(ctx context.Context, op *models.Operation, now time.Time) (OperationSummary, error) {
	payments, err := l.storage.GetPayments(ctx, op.ID)
	if err != nil {
		return OperationSummary{}, err
	}
	paid := accounting.TotalPaid(payments)
	settled := !op.IsActive() || accounting.IsSettled(paid, op.TotalDue)

	summary := OperationSummary{
		Operation: op,
		TotalPaid: paid,
		Remaining: accounting.Remaining(paid, op.TotalDue),
		Settled:   settled,
	}
	if due, ok := accounting.ProjectNextDueDate(op.CreatedOn, now, settled); ok {
		summary.NextDueDate = &models.Date{Time: due}
	}
	return summary, nil
}

// GetOperationSummary returns an operation with its totals and next due date.
func (l *Ledger) GetOperationSummary(ctx context.Context, id uuid.UUID) (*OperationSummary, error) {
	op, err := l.storage.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	summary, err := l.summarize(ctx, op, l.today())
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Dashboard lists active operations ordered by next due date, soonest first.
func (l *Ledger) Dashboard(ctx context.Context) ([]DashboardEntry, error) {
	ops, err := l.storage.GetOperations(ctx, models.OperationFilter{Status: models.OperationStatusActive})
	if err != nil {
		return nil, err
	}

	clients := make(map[uuid.UUID]*models.Client)
	now := l.today()
	entries := make([]DashboardEntry, 0, len(ops))
	for _, op := range ops {
		client, ok := clients[op.ClientID]
		if !ok {
			client, err = l.storage.GetClient(ctx, op.ClientID)
			if err != nil {
				return nil, err
			}
			clients[op.ClientID] = client
		}

		summary, err := l.summarize(ctx, op, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DashboardEntry{Client: client, OperationSummary: summary})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].NextDueDate, entries[j].NextDueDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(b.Time)
	})
	return entries, nil
}

// OperationsByClient returns every client with its operations, including
// clients that have none.
func (l *Ledger) OperationsByClient(ctx context.Context) ([]ClientOperations, error) {
	clients, err := l.storage.GetClients(ctx)
	if err != nil {
		return nil, err
	}
	ops, err := l.storage.GetOperations(ctx, models.OperationFilter{})
	if err != nil {
		return nil, err
	}

	byClient := make(map[uuid.UUID][]*models.Operation, len(clients))
	for _, op := range ops {
		byClient[op.ClientID] = append(byClient[op.ClientID], op)
	}

	groups := make([]ClientOperations, 0, len(clients))
	for _, c := range clients {
		groups = append(groups, ClientOperations{Client: c, Operations: byClient[c.ID]})
	}
	return groups, nil
}

// ClientPayments returns the payments recorded against the client's active
// operation, ordered by payment date.
func (l *Ledger) ClientPayments(ctx context.Context, clientID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	ops, err := l.storage.GetOperations(ctx, models.OperationFilter{
		ClientID: clientID,
		Status:   models.OperationStatusActive,
	})
	if err != nil {
		return nil, err
	}

	var payments []*models.Payment
	for _, op := range ops {
		ps, err := l.storage.GetPayments(ctx, op.ID)
		if err != nil {
			return nil, err
		}
		payments = append(payments, ps...)
	}
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].PaidOn.Before(payments[j].PaidOn)
	})
	return payments, nil
}
