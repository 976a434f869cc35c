package ledger

import (
	"context"

	"custodia/pkg/domain"
)

// Store is the persistence boundary for custodians and ledger entries.
// Implementations return pkg/platform/sentinel errors; services translate
// them into coded domain errors.
type Store interface {
	// CreateCustodian persists a new custodian. Returns sentinel.ErrConflict
	// when a personal custodian already exists for the same owner.
	CreateCustodian(ctx context.Context, c *Custodian) error
	GetCustodian(ctx context.Context, id domain.CustodianID) (*Custodian, error)
	// FindPersonalCustodian returns the owner's personal custodian or
	// sentinel.ErrNotFound.
	FindPersonalCustodian(ctx context.Context, owner domain.ActorID) (*Custodian, error)
	ListCustodians(ctx context.Context) ([]*Custodian, error)
	// AdjustBalance applies a signed delta to the custodian's balance.
	AdjustBalance(ctx context.Context, id domain.CustodianID, delta int) error

	AppendTransaction(ctx context.Context, tx *StockTransaction) error
	GetTransaction(ctx context.Context, id domain.TransactionID) (*StockTransaction, error)
	// DeleteTransaction removes a single entry. The compensating balance
	// reversal is the service's responsibility, inside the same RunInTx.
	DeleteTransaction(ctx context.Context, id domain.TransactionID) error
	ListTransactions(ctx context.Context) ([]*StockTransaction, error)
	ListByCustodian(ctx context.Context, id domain.CustodianID) ([]*StockTransaction, error)
}

// TxRunner provides the transactional boundary for multi-row ledger
// mutations. Either every write inside fn commits or none does, and no
// concurrent reader observes a mid-commit state.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}
