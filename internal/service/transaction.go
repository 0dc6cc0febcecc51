package service

import "context"

// TransactionManager wraps multiple repository operations in one database
// transaction. Settlement uses it to commit the status change and the outbox
// entry atomically.
type TransactionManager interface {
	// WithTransaction runs fn inside a transaction, committing when fn
	// returns nil and rolling back otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
