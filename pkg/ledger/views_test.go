package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/3244536/Magest/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOperationSummary(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Summary")

	op, err := l.CreateOperation(ctx, operationFor(c.ID, "1580000", "10", "6.5"))
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, op.ID, models.PaymentKindOrdinary, dec("267384.62"), day("2025-02-01"))
	require.NoError(t, err)

	summary, err := l.GetOperationSummary(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, summary.TotalPaid.Equal(dec("267384.62")))
	assert.True(t, summary.Remaining.Equal(dec("1470615.38")))
	assert.False(t, summary.Settled)
	require.NotNil(t, summary.NextDueDate)
	assert.Equal(t, "2025-03-02", summary.NextDueDate.Format(models.DateLayout))

	_, err = l.GetOperationSummary(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	late := mustClient(t, l, "Late")
	early := mustClient(t, l, "Early")
	settled := mustClient(t, l, "Settled")

	// Created 2025-01-01: next due 2025-03-02 on 2025-02-20.
	_, err := l.CreateOperation(ctx, operationFor(late.ID, "1000", "10", "4"))
	require.NoError(t, err)

	// Created 2025-02-10: next due 2025-03-12.
	in := operationFor(early.ID, "2000", "10", "2")
	in.CreatedOn = day("2025-02-10")
	_, err = l.CreateOperation(ctx, in)
	require.NoError(t, err)

	done, err := l.CreateOperation(ctx, operationFor(settled.ID, "100", "10", "1"))
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, done.ID, models.PaymentKindOrdinary, dec("110"), time.Time{})
	require.NoError(t, err)

	entries, err := l.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2, "completed operations are not on the dashboard")

	assert.Equal(t, "Late", entries[0].Client.Name)
	assert.Equal(t, "2025-03-02", entries[0].NextDueDate.Format(models.DateLayout))
	assert.True(t, entries[0].Operation.InstallmentAmount.Equal(dec("275")))

	assert.Equal(t, "Early", entries[1].Client.Name)
	assert.Equal(t, "2025-03-12", entries[1].NextDueDate.Format(models.DateLayout))
	assert.True(t, entries[1].Operation.InstallmentAmount.Equal(dec("1100")))
}

func TestOperationsByClient(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	a := mustClient(t, l, "A")
	b := mustClient(t, l, "B")
	mustClient(t, l, "Empty")

	first := operationFor(a.ID, "100", "10", "1")
	first.Status = models.OperationStatusCompleted
	_, err := l.CreateOperation(ctx, first)
	require.NoError(t, err)
	_, err = l.CreateOperation(ctx, operationFor(a.ID, "200", "10", "1"))
	require.NoError(t, err)
	_, err = l.CreateOperation(ctx, operationFor(b.ID, "300", "10", "1"))
	require.NoError(t, err)

	groups, err := l.OperationsByClient(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, "A", groups[0].Client.Name)
	require.Len(t, groups[0].Operations, 2)
	assert.True(t, groups[0].Operations[0].Principal.Equal(dec("100")))
	assert.Len(t, groups[1].Operations, 1)
	assert.Empty(t, groups[2].Operations)
}

func TestClientPayments(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "History")

	old, err := l.CreateOperation(ctx, operationFor(c.ID, "100", "10", "1"))
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, old.ID, models.PaymentKindOrdinary, dec("110"), day("2025-01-15"))
	require.NoError(t, err)

	current, err := l.CreateOperation(ctx, operationFor(c.ID, "1000", "10", "5"))
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, current.ID, models.PaymentKindOrdinary, dec("220"), day("2025-02-15"))
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, current.ID, models.PaymentKindEarlyPayoff, dec("100"), day("2025-02-01"))
	require.NoError(t, err)

	payments, err := l.ClientPayments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2, "only the active operation's payments")
	assert.Equal(t, "2025-02-01", payments[0].PaidOn.Format(models.DateLayout))
	assert.Equal(t, models.PaymentKindEarlyPayoff, payments[0].Kind)
	assert.Equal(t, "2025-02-15", payments[1].PaidOn.Format(models.DateLayout))

	_, err = l.ClientPayments(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
