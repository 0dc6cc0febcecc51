package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pesaflow/mpesa-gateway/internal/daraja"
	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
	"github.com/pesaflow/mpesa-gateway/internal/domain/outbox"
	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory implementation of
// transaction.Repository. Any Func field overrides the default behavior.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*transaction.Transaction
	byCheckout   map[string]*transaction.Transaction
	byKey        map[string]*transaction.Transaction

	CreateFunc                 func(ctx context.Context, tx *transaction.Transaction) error
	GetByIDFunc                func(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	GetByCheckoutRequestIDFunc func(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error)
	GetByIdempotencyKeyFunc    func(ctx context.Context, key string) (*transaction.Transaction, error)
	UpdateFunc                 func(ctx context.Context, tx *transaction.Transaction) error
	ListFunc                   func(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[uuid.UUID]*transaction.Transaction),
		byCheckout:   make(map[string]*transaction.Transaction),
		byKey:        make(map[string]*transaction.Transaction),
	}
}

// Add seeds the repository with a transaction.
func (m *MockTransactionRepository) Add(tx *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index(tx)
}

func (m *MockTransactionRepository) index(tx *transaction.Transaction) {
	m.transactions[tx.ID] = tx
	if tx.CheckoutRequestID != "" {
		m.byCheckout[tx.CheckoutRequestID] = tx
	}
	if tx.IdempotencyKey != nil {
		m.byKey[*tx.IdempotencyKey] = tx
	}
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != nil {
		if _, ok := m.byKey[*tx.IdempotencyKey]; ok {
			return domainErrors.ErrDuplicateIdempotencyKey
		}
	}
	m.index(tx)
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *MockTransactionRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	if m.GetByCheckoutRequestIDFunc != nil {
		return m.GetByCheckoutRequestIDFunc(ctx, checkoutRequestID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byCheckout[checkoutRequestID]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *MockTransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	if m.GetByIdempotencyKeyFunc != nil {
		return m.GetByIdempotencyKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byKey[key]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, tx *transaction.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.transactions[tx.ID]
	if !ok {
		return domainErrors.ErrTransactionNotFound
	}
	// Mirrors the guarded UPDATE in postgres: a row another writer already
	// settled refuses the write instead of being overwritten.
	if stored != tx && stored.IsTerminal() {
		return domainErrors.ErrInvalidStateTransition
	}
	m.index(tx)
	return nil
}

func (m *MockTransactionRepository) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*transaction.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending {
			pending = append(pending, e)
			if len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// --- Correlation Store Mock ---

// MockCorrelationStore is an in-memory CheckoutRequestID -> transaction ID map.
type MockCorrelationStore struct {
	mu      sync.Mutex
	entries map[string]string

	PutFunc func(ctx context.Context, checkoutRequestID, transactionID string) error
	GetFunc func(ctx context.Context, checkoutRequestID string) (string, error)
}

func NewMockCorrelationStore() *MockCorrelationStore {
	return &MockCorrelationStore{entries: make(map[string]string)}
}

func (m *MockCorrelationStore) Put(ctx context.Context, checkoutRequestID, transactionID string) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, checkoutRequestID, transactionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[checkoutRequestID] = transactionID
	return nil
}

func (m *MockCorrelationStore) Get(ctx context.Context, checkoutRequestID string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, checkoutRequestID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entries[checkoutRequestID]
	if !ok {
		return "", domainErrors.ErrCorrelationNotFound
	}
	return id, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs the callback without a real database transaction.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Gateway Mock ---

// MockGateway is a mock implementation of the Daraja-facing gateway.
type MockGateway struct {
	InitiatePaymentFunc func(ctx context.Context, req daraja.PaymentRequest) (*daraja.STKPushResult, error)
	QueryStatusFunc     func(ctx context.Context, checkoutRequestID string) (*daraja.TransactionStatus, error)

	mu           sync.Mutex
	InitiateReqs []daraja.PaymentRequest
	QueryReqs    []string
}

func (m *MockGateway) InitiatePayment(ctx context.Context, req daraja.PaymentRequest) (*daraja.STKPushResult, error) {
	m.mu.Lock()
	m.InitiateReqs = append(m.InitiateReqs, req)
	m.mu.Unlock()
	if m.InitiatePaymentFunc != nil {
		return m.InitiatePaymentFunc(ctx, req)
	}
	return &daraja.STKPushResult{
		Success:           true,
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: "ws_CO_191220191020363925",
		ResponseCode:      "0",
		Message:           "Payment request sent successfully",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (m *MockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.TransactionStatus, error) {
	m.mu.Lock()
	m.QueryReqs = append(m.QueryReqs, checkoutRequestID)
	m.mu.Unlock()
	if m.QueryStatusFunc != nil {
		return m.QueryStatusFunc(ctx, checkoutRequestID)
	}
	return &daraja.TransactionStatus{
		TransactionID: checkoutRequestID,
		Status:        daraja.StatusPending,
	}, nil
}
