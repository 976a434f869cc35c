// Package service implements the custody ledger operations: lazy personal
// custodian creation, inbound receipts, two-leg transfers, retrievals, and
// compensating deletes. Every mutation runs inside the store's transactional
// boundary and re-verifies the balance/ledger-sum invariant before commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"custodia/internal/ledger"
	"custodia/internal/platform/metrics"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

type Service struct {
	store   ledger.Store
	tx      ledger.TxRunner
	logger  *slog.Logger
	metrics *metrics.Metrics

	// lazyCreate collapses concurrent first-use calls for the same actor
	// into one create attempt; the store's uniqueness guarantee backs it up
	// across processes.
	lazyCreate singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store ledger.Store, tx ledger.TxRunner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("ledger tx runner is required")
	}
	svc := &Service{store: store, tx: tx, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// translate maps sentinel store errors onto the domain taxonomy. Anything
// that is not a factual not-found/conflict is a storage failure.
func translate(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, msg)
	}
}

// GetOrCreatePersonalCustodian returns the actor's personal custodian,
// creating it on first use. Safe under concurrent first calls: in-flight
// duplicates share one result via singleflight, and a create that loses the
// race to another process falls back to reading the winner's row.
func (s *Service) GetOrCreatePersonalCustodian(ctx context.Context, actorID domain.ActorID, displayName string) (*ledger.Custodian, error) {
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeMissingField, "actor id is required")
	}

	v, err, _ := s.lazyCreate.Do(actorID.String(), func() (any, error) {
		existing, err := s.store.FindPersonalCustodian(ctx, actorID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, translate(err, "find personal custodian")
		}

		created := &ledger.Custodian{
			ID:        domain.NewCustodianID(),
			Name:      displayName,
			Kind:      domain.KindPersonal,
			OwnerID:   actorID,
			CreatedAt: time.Now(),
		}
		err = s.tx.RunInTx(ctx, func(store ledger.Store) error {
			// Re-check inside the boundary: another process may have won.
			if _, findErr := store.FindPersonalCustodian(ctx, actorID); findErr == nil {
				return sentinel.ErrConflict
			}
			return store.CreateCustodian(ctx, created)
		})
		if errors.Is(err, sentinel.ErrConflict) {
			winner, findErr := s.store.FindPersonalCustodian(ctx, actorID)
			if findErr != nil {
				return nil, translate(findErr, "read personal custodian after conflict")
			}
			return winner, nil
		}
		if err != nil {
			return nil, translate(err, "create personal custodian")
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ledger.Custodian), nil
}

// CreateFixedLocation registers a named clinic/pharmacy custodian.
func (s *Service) CreateFixedLocation(ctx context.Context, name string) (*ledger.Custodian, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeMissingField, "location name is required")
	}
	c := &ledger.Custodian{
		ID:        domain.NewCustodianID(),
		Name:      name,
		Kind:      domain.KindFixedLocation,
		CreatedAt: time.Now(),
	}
	if err := s.tx.RunInTx(ctx, func(store ledger.Store) error {
		return store.CreateCustodian(ctx, c)
	}); err != nil {
		return nil, translate(err, "create fixed location")
	}
	return c, nil
}

// RecordInbound appends one positive entry and increments the balance.
func (s *Service) RecordInbound(ctx context.Context, custodianID domain.CustodianID, quantity int, date time.Time, sourceLabel string) (*ledger.StockTransaction, error) {
	if quantity <= 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidQuantity, "inbound quantity must be positive, got %d", quantity)
	}

	entry := &ledger.StockTransaction{
		ID:          domain.NewTransactionID(),
		CustodianID: custodianID,
		Quantity:    quantity,
		Date:        date,
		Label:       sourceLabel,
		CreatedAt:   time.Now(),
	}
	err := s.tx.RunInTx(ctx, func(store ledger.Store) error {
		if _, err := store.GetCustodian(ctx, custodianID); err != nil {
			return err
		}
		if err := store.AppendTransaction(ctx, entry); err != nil {
			return err
		}
		if err := store.AdjustBalance(ctx, custodianID, quantity); err != nil {
			return err
		}
		return s.checkInvariant(ctx, store, custodianID)
	})
	if err != nil {
		return nil, translate(err, "record inbound")
	}
	if s.metrics != nil {
		s.metrics.StockReceipts.Inc()
	}
	return entry, nil
}

// RecordOutbound appends one negative entry and decrements the balance.
// Used for terminal stock consumption, e.g. the debit accompanying a
// delivery. A balance driven negative is tolerated and logged.
func (s *Service) RecordOutbound(ctx context.Context, custodianID domain.CustodianID, quantity int, date time.Time, label string) (*ledger.StockTransaction, error) {
	if quantity <= 0 {
		return nil, dErrors.Newf(dErrors.CodeInvalidQuantity, "outbound quantity must be positive, got %d", quantity)
	}

	entry := &ledger.StockTransaction{
		ID:          domain.NewTransactionID(),
		CustodianID: custodianID,
		Quantity:    -quantity,
		Date:        date,
		Label:       label,
		CreatedAt:   time.Now(),
	}
	err := s.tx.RunInTx(ctx, func(store ledger.Store) error {
		current, err := store.GetCustodian(ctx, custodianID)
		if err != nil {
			return err
		}
		if current.Balance < quantity {
			s.logger.WarnContext(ctx, "outbound entry drives balance negative",
				"custodian_id", custodianID.String(),
				"balance", current.Balance,
				"quantity", quantity,
			)
		}
		if err := store.AppendTransaction(ctx, entry); err != nil {
			return err
		}
		if err := store.AdjustBalance(ctx, custodianID, -quantity); err != nil {
			return err
		}
		return s.checkInvariant(ctx, store, custodianID)
	})
	if err != nil {
		return nil, translate(err, "record outbound")
	}
	return entry, nil
}

// Transfer moves quantity between two custodians as one atomic unit: an
// outbound leg at from, an inbound leg at to, both balances updated, or
// nothing at all.
func (s *Service) Transfer(ctx context.Context, from, to domain.CustodianID, quantity int, date time.Time, label string) (*ledger.StockTransaction, *ledger.StockTransaction, error) {
	if quantity <= 0 {
		return nil, nil, dErrors.Newf(dErrors.CodeInvalidQuantity, "transfer quantity must be positive, got %d", quantity)
	}
	if from == to {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "transfer source and destination must differ")
	}

	outID := domain.NewTransactionID()
	inID := domain.NewTransactionID()
	now := time.Now()
	outLeg := &ledger.StockTransaction{
		ID:              outID,
		CustodianID:     from,
		Quantity:        -quantity,
		Date:            date,
		Label:           label,
		CounterpartID:   &to,
		CounterpartTxID: &inID,
		CreatedAt:       now,
	}
	inLeg := &ledger.StockTransaction{
		ID:              inID,
		CustodianID:     to,
		Quantity:        quantity,
		Date:            date,
		Label:           label,
		CounterpartID:   &from,
		CounterpartTxID: &outID,
		CreatedAt:       now,
	}

	err := s.tx.RunInTx(ctx, func(store ledger.Store) error {
		source, err := store.GetCustodian(ctx, from)
		if err != nil {
			return err
		}
		if _, err := store.GetCustodian(ctx, to); err != nil {
			return err
		}
		if source.Balance < quantity {
			// Tolerated by policy: the balance may go negative, the caller
			// surfaces it as a warning rather than a rejection.
			s.logger.WarnContext(ctx, "transfer drives balance negative",
				"custodian_id", from.String(),
				"balance", source.Balance,
				"quantity", quantity,
			)
		}
		if err := store.AppendTransaction(ctx, outLeg); err != nil {
			return err
		}
		if err := store.AppendTransaction(ctx, inLeg); err != nil {
			return err
		}
		if err := store.AdjustBalance(ctx, from, -quantity); err != nil {
			return err
		}
		if err := store.AdjustBalance(ctx, to, quantity); err != nil {
			return err
		}
		if err := s.checkInvariant(ctx, store, from); err != nil {
			return err
		}
		return s.checkInvariant(ctx, store, to)
	})
	if err != nil {
		return nil, nil, translate(err, "transfer stock")
	}
	if s.metrics != nil {
		s.metrics.StockTransfers.Inc()
	}
	return outLeg, inLeg, nil
}

// Retrieve pulls stock back from a fixed location into a personal
// custodian. It is a fresh transfer in the reverse direction; the original
// transfer's entries are never touched.
func (s *Service) Retrieve(ctx context.Context, from, to domain.CustodianID, quantity int, date time.Time, reasonLabel string) (*ledger.StockTransaction, *ledger.StockTransaction, error) {
	outLeg, inLeg, err := s.Transfer(ctx, from, to, quantity, date, reasonLabel)
	if err != nil {
		return nil, nil, err
	}
	if s.metrics != nil {
		s.metrics.StockRetrievals.Inc()
	}
	return outLeg, inLeg, nil
}

// DeleteTransaction removes a ledger entry and reverses its balance effect.
// When the entry is one leg of a transfer the counterpart leg is removed in
// the same transaction, so a half-transfer is never left orphaned.
func (s *Service) DeleteTransaction(ctx context.Context, txID domain.TransactionID) error {
	err := s.tx.RunInTx(ctx, func(store ledger.Store) error {
		entry, err := store.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}

		legs := []*ledger.StockTransaction{entry}
		if entry.CounterpartTxID != nil {
			counterpart, err := store.GetTransaction(ctx, *entry.CounterpartTxID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return err
			}
			if counterpart != nil {
				legs = append(legs, counterpart)
			}
		}

		for _, leg := range legs {
			if err := store.DeleteTransaction(ctx, leg.ID); err != nil {
				return err
			}
			if err := store.AdjustBalance(ctx, leg.CustodianID, -leg.Quantity); err != nil {
				return err
			}
			after, err := store.GetCustodian(ctx, leg.CustodianID)
			if err != nil {
				return err
			}
			if after.Balance < 0 {
				s.logger.WarnContext(ctx, "compensating delete left balance negative",
					"custodian_id", leg.CustodianID.String(),
					"balance", after.Balance,
					"transaction_id", leg.ID.String(),
				)
			}
			if err := s.checkInvariant(ctx, store, leg.CustodianID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate(err, "delete transaction")
	}
	if s.metrics != nil {
		s.metrics.CompensatingDeletes.Inc()
	}
	return nil
}

// BalanceOf returns the custodian's current balance.
func (s *Service) BalanceOf(ctx context.Context, custodianID domain.CustodianID) (int, error) {
	c, err := s.store.GetCustodian(ctx, custodianID)
	if err != nil {
		return 0, translate(err, "read custodian balance")
	}
	return c.Balance, nil
}

// GetCustodian returns one custodian by id.
func (s *Service) GetCustodian(ctx context.Context, id domain.CustodianID) (*ledger.Custodian, error) {
	c, err := s.store.GetCustodian(ctx, id)
	if err != nil {
		return nil, translate(err, "read custodian")
	}
	return c, nil
}

// ListCustodians returns all custodians, for destination pickers and admin
// views.
func (s *Service) ListCustodians(ctx context.Context) ([]*ledger.Custodian, error) {
	cs, err := s.store.ListCustodians(ctx)
	if err != nil {
		return nil, translate(err, "list custodians")
	}
	return cs, nil
}

// ListTransactions returns the full ledger snapshot, chronological.
// Visibility filtering is the caller's responsibility.
func (s *Service) ListTransactions(ctx context.Context) ([]*ledger.StockTransaction, error) {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	return txs, nil
}

// checkInvariant recomputes the custodian's ledger sum and compares it to
// the stored balance. A mismatch aborts the surrounding transaction; it
// must never fire in correct operation.
func (s *Service) checkInvariant(ctx context.Context, store ledger.Store, custodianID domain.CustodianID) error {
	c, err := store.GetCustodian(ctx, custodianID)
	if err != nil {
		return err
	}
	txs, err := store.ListByCustodian(ctx, custodianID)
	if err != nil {
		return err
	}
	sum := 0
	for _, tx := range txs {
		sum += tx.Quantity
	}
	if sum != c.Balance {
		if s.metrics != nil {
			s.metrics.InvariantCheckFailures.Inc()
		}
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"custodian %s balance %d does not match ledger sum %d", custodianID, c.Balance, sum)
	}
	return nil
}
