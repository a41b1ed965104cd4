package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3244536/Magest/pkg/accounting"
	"github.com/3244536/Magest/pkg/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStore opens dataSourceName with foreign keys and WAL enabled and
// initializes the schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(dataSourceName string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", withPragmas(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// Single writer. This also keeps ":memory:" pinned to one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info("database connection established and schema initialized",
		zap.String("dsn", dataSourceName))
	return s, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// initSchema creates the tables if they don't already exist.
// Decimal columns are TEXT so no precision is lost; dates are YYYY-MM-DD TEXT.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		telephone TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		valeur_marchandise TEXT NOT NULL,
		taux_benefice TEXT NOT NULL,
		duree_mois TEXT NOT NULL,
		date_creation TEXT NOT NULL,
		statut TEXT NOT NULL,
		montant_total TEXT NOT NULL,
		montant_benefice TEXT NOT NULL,
		montant_mensualite TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_operations_client
		ON operations(client_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_operations_one_active
		ON operations(client_id) WHERE statut = 'en-cours';
	CREATE TABLE IF NOT EXISTS paiements (
		id TEXT PRIMARY KEY,
		operation_id TEXT NOT NULL REFERENCES operations(id) ON DELETE CASCADE,
		type_paiement TEXT NOT NULL,
		montant TEXT NOT NULL,
		date_paiement TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_paiements_operation
		ON paiements(operation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// isConstraint reports whether err is a SQLite constraint failure of the given kind.
func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == code
	}
	return false
}

func storageErr(op string, err error) error {
	return &models.StorageError{Op: op, Err: err}
}

// InsertClient assigns a new id to client and stores it.
func (s *SQLiteStore) InsertClient(ctx context.Context, client *models.Client) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (id, nom, telephone, description) VALUES (?, ?, ?, ?)`,
		id.String(), client.Name, client.Phone, client.Description,
	)
	if err != nil {
		return uuid.Nil, storageErr("insert client", err)
	}
	client.ID = id
	return id, nil
}

// GetClient retrieves a client by its ID.
func (s *SQLiteStore) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, nom, telephone, description FROM clients WHERE id = ?`, id.String())

	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Entity: "client", ID: id.String()}
		}
		return nil, storageErr("get client", err)
	}
	return client, nil
}

// GetClients retrieves all clients ordered by name.
func (s *SQLiteStore) GetClients(ctx context.Context) ([]*models.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nom, telephone, description FROM clients ORDER BY nom, rowid`)
	if err != nil {
		return nil, storageErr("get clients", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, storageErr("scan client", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate clients", err)
	}
	return clients, nil
}

// DeleteClientCascade removes a client, its operations and their payments
// within a transaction. A missing client is not an error.
func (s *SQLiteStore) DeleteClientCascade(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin delete client", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM paiements WHERE operation_id IN (SELECT id FROM operations WHERE client_id = ?)`,
		id.String()); err != nil {
		return storageErr("delete client payments", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM operations WHERE client_id = ?`, id.String()); err != nil {
		return storageErr("delete client operations", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id.String()); err != nil {
		return storageErr("delete client", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit delete client", err)
	}
	s.log.Debug("client cascade deleted", zap.Stringer("client_id", id))
	return nil
}

const operationColumns = `id, client_id, valeur_marchandise, taux_benefice, duree_mois, date_creation, statut, montant_total, montant_benefice, montant_mensualite`

// InsertOperation assigns a new id to op and stores it. The active-operation
// check and the insert share one transaction, and the partial unique index
// backs it up.
func (s *SQLiteStore) InsertOperation(ctx context.Context, op *models.Operation) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, storageErr("begin insert operation", err)
	}
	defer tx.Rollback()

	if op.Status == models.OperationStatusActive {
		var active int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM operations WHERE client_id = ? AND statut = ?`,
			op.ClientID.String(), models.OperationStatusActive,
		).Scan(&active)
		if err != nil {
			return uuid.Nil, storageErr("count active operations", err)
		}
		if active > 0 {
			return uuid.Nil, models.ErrOperationConflict
		}
	}

	id := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO operations (`+operationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), op.ClientID.String(), op.Principal, op.RatePercent, op.DurationMonths,
		op.CreatedOn.Format(models.DateLayout), op.Status, op.TotalDue, op.ProfitAmount, op.InstallmentAmount,
	)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return uuid.Nil, &models.NotFoundError{Entity: "client", ID: op.ClientID.String()}
		case isConstraint(err, sqlite3.ErrConstraintUnique):
			return uuid.Nil, models.ErrOperationConflict
		}
		return uuid.Nil, storageErr("insert operation", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, storageErr("commit insert operation", err)
	}
	op.ID = id
	return id, nil
}

// GetOperation retrieves an operation by its ID.
func (s *SQLiteStore) GetOperation(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = ?`, id.String())

	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Entity: "operation", ID: id.String()}
		}
		return nil, storageErr("get operation", err)
	}
	return op, nil
}

// GetOperations retrieves operations matching filter in creation order.
func (s *SQLiteStore) GetOperations(ctx context.Context, filter models.OperationFilter) ([]*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations`
	var (
		where []string
		args  []any
	)
	if filter.ClientID != uuid.Nil {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID.String())
	}
	if filter.Status != "" {
		where = append(where, "statut = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_creation, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get operations", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, storageErr("scan operation", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate operations", err)
	}
	return ops, nil
}

// UpdateOperationStatus sets the status of an existing operation.
func (s *SQLiteStore) UpdateOperationStatus(ctx context.Context, id uuid.UUID, status models.OperationStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE operations SET statut = ? WHERE id = ?`, status, id.String())
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return models.ErrOperationConflict
		}
		return storageErr("update operation status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("check rows affected", err)
	}
	if rowsAffected == 0 {
		return &models.NotFoundError{Entity: "operation", ID: id.String()}
	}
	return nil
}

// DeleteOperationCascade removes an operation and its payments within a
// transaction. A missing operation is not an error.
func (s *SQLiteStore) DeleteOperationCascade(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin delete operation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM paiements WHERE operation_id = ?`, id.String()); err != nil {
		return storageErr("delete operation payments", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id.String()); err != nil {
		return storageErr("delete operation", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit delete operation", err)
	}
	s.log.Debug("operation cascade deleted", zap.Stringer("operation_id", id))
	return nil
}

// InsertPayment assigns a new id to payment and stores it.
func (s *SQLiteStore) InsertPayment(ctx context.Context, payment *models.Payment) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paiements (id, operation_id, type_paiement, montant, date_paiement) VALUES (?, ?, ?, ?, ?)`,
		id.String(), payment.OperationID.String(), payment.Kind, payment.Amount, payment.PaidOn.Format(models.DateLayout),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return uuid.Nil, &models.NotFoundError{Entity: "operation", ID: payment.OperationID.String()}
		}
		return uuid.Nil, storageErr("insert payment", err)
	}
	payment.ID = id
	return id, nil
}

// ApplyPayment stores payment and, in the same transaction, marks its
// operation Completed once the operation's payments cover its total due.
// Nothing is kept when any step fails. A Completed operation yields
// models.ErrOperationCompleted.
func (s *SQLiteStore) ApplyPayment(ctx context.Context, payment *models.Payment) (*PaymentResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin apply payment", err)
	}
	defer tx.Rollback()

	var (
		status   string
		totalDue decimal.Decimal
	)
	err = tx.QueryRowContext(ctx,
		`SELECT statut, montant_total FROM operations WHERE id = ?`, payment.OperationID.String(),
	).Scan(&status, &totalDue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Entity: "operation", ID: payment.OperationID.String()}
		}
		return nil, storageErr("get operation status", err)
	}
	if models.OperationStatus(status) != models.OperationStatusActive {
		return nil, models.ErrOperationCompleted
	}

	id := uuid.New()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO paiements (id, operation_id, type_paiement, montant, date_paiement) VALUES (?, ?, ?, ?, ?)`,
		id.String(), payment.OperationID.String(), payment.Kind, payment.Amount, payment.PaidOn.Format(models.DateLayout),
	); err != nil {
		return nil, storageErr("insert payment", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT montant FROM paiements WHERE operation_id = ?`, payment.OperationID.String())
	if err != nil {
		return nil, storageErr("sum payments", err)
	}
	var amounts []*models.Payment
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			rows.Close()
			return nil, storageErr("scan payment amount", err)
		}
		amounts = append(amounts, &models.Payment{Amount: amount})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate payment amounts", err)
	}

	result := &PaymentResult{TotalPaid: accounting.TotalPaid(amounts), TotalDue: totalDue}
	if accounting.IsSettled(result.TotalPaid, totalDue) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE operations SET statut = ? WHERE id = ?`,
			models.OperationStatusCompleted, payment.OperationID.String()); err != nil {
			return nil, storageErr("complete operation", err)
		}
		result.Settled = true
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit apply payment", err)
	}
	payment.ID = id
	return result, nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, operation_id, type_paiement, montant, date_paiement FROM paiements WHERE id = ?`, id.String())

	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.NotFoundError{Entity: "payment", ID: id.String()}
		}
		return nil, storageErr("get payment", err)
	}
	return payment, nil
}

// GetPayments retrieves the payments of an operation ordered by payment date.
func (s *SQLiteStore) GetPayments(ctx context.Context, operationID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation_id, type_paiement, montant, date_paiement FROM paiements WHERE operation_id = ? ORDER BY date_paiement, rowid`,
		operationID.String())
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get payments for operation %s", operationID), err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, storageErr("scan payment", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate payments", err)
	}
	return payments, nil
}

// DeletePayment removes a single payment. A missing payment is not an error.
func (s *SQLiteStore) DeletePayment(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM paiements WHERE id = ?`, id.String()); err != nil {
		return storageErr("delete payment", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*models.Client, error) {
	var (
		client models.Client
		idStr  string
	)
	if err := row.Scan(&idStr, &client.Name, &client.Phone, &client.Description); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("bad client id %q: %w", idStr, err)
	}
	client.ID = id
	return &client, nil
}

func scanOperation(row scanner) (*models.Operation, error) {
	var (
		op                 models.Operation
		idStr, clientIDStr string
		created            string
	)
	err := row.Scan(&idStr, &clientIDStr, &op.Principal, &op.RatePercent, &op.DurationMonths,
		&created, &op.Status, &op.TotalDue, &op.ProfitAmount, &op.InstallmentAmount)
	if err != nil {
		return nil, err
	}
	if op.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("bad operation id %q: %w", idStr, err)
	}
	if op.ClientID, err = uuid.Parse(clientIDStr); err != nil {
		return nil, fmt.Errorf("bad client id %q: %w", clientIDStr, err)
	}
	if op.CreatedOn, err = parseDate(created); err != nil {
		return nil, err
	}
	return &op, nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	var (
		payment               models.Payment
		idStr, operationIDStr string
		paidOn                string
	)
	err := row.Scan(&idStr, &operationIDStr, &payment.Kind, &payment.Amount, &paidOn)
	if err != nil {
		return nil, err
	}
	if payment.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("bad payment id %q: %w", idStr, err)
	}
	if payment.OperationID, err = uuid.Parse(operationIDStr); err != nil {
		return nil, fmt.Errorf("bad operation id %q: %w", operationIDStr, err)
	}
	if payment.PaidOn, err = parseDate(paidOn); err != nil {
		return nil, err
	}
	return &payment, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}
