package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"status":     "status",
}

const transactionColumns = `id, idempotency_key, merchant_request_id, checkout_request_id,
	        account_reference, transaction_desc, amount, phone_number, status,
	        mpesa_receipt_number, transaction_date, error_message, callback_payload,
	        webhook_url, created_at, updated_at, completed_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO mpesa_transactions
		 (id, idempotency_key, merchant_request_id, checkout_request_id,
		  account_reference, transaction_desc, amount, phone_number, status,
		  mpesa_receipt_number, transaction_date, error_message, callback_payload,
		  webhook_url, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		tx.ID, tx.IdempotencyKey, tx.MerchantRequestID, tx.CheckoutRequestID,
		tx.AccountReference, tx.TransactionDesc, amountToNumericString(tx.Amount), tx.PhoneNumber, string(tx.Status),
		tx.MpesaReceiptNumber, tx.TransactionDate, tx.ErrorMessage, tx.CallbackPayload,
		tx.WebhookURL, tx.CreatedAt, tx.UpdatedAt, tx.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its internal ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM mpesa_transactions WHERE id = $1`, id))
}

// GetByCheckoutRequestID retrieves a transaction by its Daraja correlation
// handle.
func (r *TransactionRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM mpesa_transactions WHERE checkout_request_id = $1`, checkoutRequestID))
}

// GetByIdempotencyKey retrieves a transaction by the merchant's idempotency key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM mpesa_transactions WHERE idempotency_key = $1`, key))
}

// Update writes back a settled transaction. The write is a compare-and-set
// from pending: when a concurrent callback or poll already settled the row,
// no rows match and ErrInvalidStateTransition tells the caller to re-read
// instead of overwriting the terminal state or double-queueing a webhook.
func (r *TransactionRepository) Update(ctx context.Context, tx *transaction.Transaction) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE mpesa_transactions SET
		  merchant_request_id=$1, checkout_request_id=$2, status=$3,
		  mpesa_receipt_number=$4, transaction_date=$5, error_message=$6,
		  callback_payload=$7, updated_at=$8, completed_at=$9
		 WHERE id=$10 AND status=$11`,
		tx.MerchantRequestID, tx.CheckoutRequestID, string(tx.Status),
		tx.MpesaReceiptNumber, tx.TransactionDate, tx.ErrorMessage,
		tx.CallbackPayload, tx.UpdatedAt, tx.CompletedAt, tx.ID,
		string(transaction.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM mpesa_transactions WHERE id = $1)`, tx.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if exists {
			return domainErrors.ErrInvalidStateTransition
		}
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

// List lists transactions with optional filters.
func (r *TransactionRepository) List(ctx context.Context, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM mpesa_transactions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.PhoneNumber != nil {
		query += fmt.Sprintf(" AND phone_number = $%d", argIdx)
		args = append(args, *f.PhoneNumber)
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// scanTransaction scans a transaction from any source implementing scanner.
func (r *TransactionRepository) scanTransaction(s scanner) (*transaction.Transaction, error) {
	tx := &transaction.Transaction{}
	var (
		amountStr string
		status    string
	)
	err := s.Scan(
		&tx.ID, &tx.IdempotencyKey, &tx.MerchantRequestID, &tx.CheckoutRequestID,
		&tx.AccountReference, &tx.TransactionDesc, &amountStr, &tx.PhoneNumber, &status,
		&tx.MpesaReceiptNumber, &tx.TransactionDate, &tx.ErrorMessage, &tx.CallbackPayload,
		&tx.WebhookURL, &tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	amount, err := numericStringToAmount(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	tx.Amount = amount
	tx.Status = transaction.Status(status)
	return tx, nil
}
