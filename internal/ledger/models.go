package ledger

import (
	"time"

	"custodia/pkg/domain"
)

// Custodian is a holder of physical stock: a field agent's personal holding
// or a fixed clinic/pharmacy location.
//
// Invariants:
//   - Balance equals the sum of signed quantities of all transactions owned
//     by this custodian, after every mutation including deletions.
//   - Exactly one personal custodian exists per owning actor; it is created
//     lazily on first use and creation is idempotent under concurrency.
//   - Kind never changes after creation.
type Custodian struct {
	ID        domain.CustodianID   `json:"id"`
	Name      string               `json:"name"`
	Kind      domain.CustodianKind `json:"kind"`
	OwnerID   domain.ActorID       `json:"owner_id,omitempty"` // zero for fixed locations
	Balance   int                  `json:"balance"`
	CreatedAt time.Time            `json:"created_at"`
}

// StockTransaction is one immutable ledger entry. Positive quantity is
// inbound, negative is outbound. Corrections are new entries, never edits;
// the only removal path is the explicit compensating delete.
type StockTransaction struct {
	ID          domain.TransactionID `json:"id"`
	CustodianID domain.CustodianID   `json:"custodian_id"`
	Quantity    int                  `json:"quantity"`
	Date        time.Time            `json:"date"`
	Label       string               `json:"label"`
	// Counterpart fields are set on both legs of a transfer. CounterpartID
	// names the other custodian; CounterpartTxID names the sibling entry so
	// the cascade delete can locate it without guessing.
	CounterpartID   *domain.CustodianID   `json:"counterpart_id,omitempty"`
	CounterpartTxID *domain.TransactionID `json:"counterpart_tx_id,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// IsTransferLeg reports whether this entry is one half of a paired transfer.
func (t *StockTransaction) IsTransferLeg() bool {
	return t.CounterpartTxID != nil
}
