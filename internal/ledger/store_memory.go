package ledger

import (
	"context"
	"sync"
	"time"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemory is the development and test implementation of Store. It also
// implements TxRunner: RunInTx clones the dataset, applies fn to the clone,
// and swaps it in atomically under the write lock, so a failed fn leaves no
// partial state and readers never observe a mid-commit view.
type InMemory struct {
	mu   sync.RWMutex
	data *memData
}

type memData struct {
	custodians map[domain.CustodianID]*Custodian
	txs        map[domain.TransactionID]*StockTransaction
	order      []domain.TransactionID // append order, for chronological listing
}

func NewInMemory() *InMemory {
	return &InMemory{data: newMemData()}
}

func newMemData() *memData {
	return &memData{
		custodians: make(map[domain.CustodianID]*Custodian),
		txs:        make(map[domain.TransactionID]*StockTransaction),
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		custodians: make(map[domain.CustodianID]*Custodian, len(d.custodians)),
		txs:        make(map[domain.TransactionID]*StockTransaction, len(d.txs)),
		order:      append([]domain.TransactionID(nil), d.order...),
	}
	for id, cust := range d.custodians {
		cp := *cust
		c.custodians[id] = &cp
	}
	for id, tx := range d.txs {
		cp := *tx
		c.txs[id] = &cp
	}
	return c
}

// ---- core operations on the dataset, shared by the locked store and the
// ---- unlocked transactional view

func (d *memData) createCustodian(c *Custodian) error {
	if c.Kind == domain.KindPersonal {
		for _, existing := range d.custodians {
			if existing.Kind == domain.KindPersonal && existing.OwnerID == c.OwnerID {
				return sentinel.ErrConflict
			}
		}
	}
	if _, ok := d.custodians[c.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	d.custodians[c.ID] = &cp
	return nil
}

func (d *memData) getCustodian(id domain.CustodianID) (*Custodian, error) {
	c, ok := d.custodians[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *memData) findPersonalCustodian(owner domain.ActorID) (*Custodian, error) {
	for _, c := range d.custodians {
		if c.Kind == domain.KindPersonal && c.OwnerID == owner {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (d *memData) listCustodians() []*Custodian {
	out := make([]*Custodian, 0, len(d.custodians))
	for _, c := range d.custodians {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func (d *memData) adjustBalance(id domain.CustodianID, delta int) error {
	c, ok := d.custodians[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Balance += delta
	return nil
}

func (d *memData) appendTransaction(tx *StockTransaction) error {
	if _, ok := d.txs[tx.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *tx
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	d.txs[tx.ID] = &cp
	d.order = append(d.order, tx.ID)
	return nil
}

func (d *memData) getTransaction(id domain.TransactionID) (*StockTransaction, error) {
	tx, ok := d.txs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (d *memData) deleteTransaction(id domain.TransactionID) error {
	if _, ok := d.txs[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(d.txs, id)
	for i, other := range d.order {
		if other == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *memData) listTransactions() []*StockTransaction {
	out := make([]*StockTransaction, 0, len(d.order))
	for _, id := range d.order {
		if tx, ok := d.txs[id]; ok {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out
}

func (d *memData) listByCustodian(id domain.CustodianID) []*StockTransaction {
	var out []*StockTransaction
	for _, txID := range d.order {
		if tx, ok := d.txs[txID]; ok && tx.CustodianID == id {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out
}

// ---- Store implementation (locked)

func (s *InMemory) CreateCustodian(_ context.Context, c *Custodian) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createCustodian(c)
}

func (s *InMemory) GetCustodian(_ context.Context, id domain.CustodianID) (*Custodian, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getCustodian(id)
}

func (s *InMemory) FindPersonalCustodian(_ context.Context, owner domain.ActorID) (*Custodian, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.findPersonalCustodian(owner)
}

func (s *InMemory) ListCustodians(_ context.Context) ([]*Custodian, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listCustodians(), nil
}

func (s *InMemory) AdjustBalance(_ context.Context, id domain.CustodianID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.adjustBalance(id, delta)
}

func (s *InMemory) AppendTransaction(_ context.Context, tx *StockTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.appendTransaction(tx)
}

func (s *InMemory) GetTransaction(_ context.Context, id domain.TransactionID) (*StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getTransaction(id)
}

func (s *InMemory) DeleteTransaction(_ context.Context, id domain.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteTransaction(id)
}

func (s *InMemory) ListTransactions(_ context.Context) ([]*StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listTransactions(), nil
}

func (s *InMemory) ListByCustodian(_ context.Context, id domain.CustodianID) ([]*StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listByCustodian(id), nil
}

// ---- TxRunner implementation

// txView exposes the cloned dataset through the Store interface. No locking:
// the clone is private to the transaction until committed.
type txView struct {
	data *memData
}

func (v *txView) CreateCustodian(_ context.Context, c *Custodian) error {
	return v.data.createCustodian(c)
}

func (v *txView) GetCustodian(_ context.Context, id domain.CustodianID) (*Custodian, error) {
	return v.data.getCustodian(id)
}

func (v *txView) FindPersonalCustodian(_ context.Context, owner domain.ActorID) (*Custodian, error) {
	return v.data.findPersonalCustodian(owner)
}

func (v *txView) ListCustodians(_ context.Context) ([]*Custodian, error) {
	return v.data.listCustodians(), nil
}

func (v *txView) AdjustBalance(_ context.Context, id domain.CustodianID, delta int) error {
	return v.data.adjustBalance(id, delta)
}

func (v *txView) AppendTransaction(_ context.Context, tx *StockTransaction) error {
	return v.data.appendTransaction(tx)
}

func (v *txView) GetTransaction(_ context.Context, id domain.TransactionID) (*StockTransaction, error) {
	return v.data.getTransaction(id)
}

func (v *txView) DeleteTransaction(_ context.Context, id domain.TransactionID) error {
	return v.data.deleteTransaction(id)
}

func (v *txView) ListTransactions(_ context.Context) ([]*StockTransaction, error) {
	return v.data.listTransactions(), nil
}

func (v *txView) ListByCustodian(_ context.Context, id domain.CustodianID) ([]*StockTransaction, error) {
	return v.data.listByCustodian(id), nil
}

// RunInTx applies fn to a private clone and commits by pointer swap.
// The write lock is held for the duration, which also serializes all
// balance-mutating operations.
func (s *InMemory) RunInTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&txView{data: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}
