// Package coordinator orchestrates the composite user actions that span
// the custody ledger, the delivery recorder, and the hierarchy resolver.
// It authorizes before mutating, and a failure in any step leaves no
// partial state behind.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"custodia/internal/delivery"
	deliverysvc "custodia/internal/delivery/service"
	"custodia/internal/hierarchy"
	"custodia/internal/ledger"
	ledgersvc "custodia/internal/ledger/service"
	"custodia/internal/profile"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// SourceKind selects where transferred stock originates: the actor's own
// personal holding, or a named external supplier outside the ledger.
type SourceKind string

const (
	SourcePersonal SourceKind = "personal"
	SourceExternal SourceKind = "external"
)

// ParseSourceKind constructs a SourceKind from external input.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(s); k {
	case SourcePersonal, SourceExternal:
		return k, nil
	default:
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid source kind %q", s)
	}
}

type Coordinator struct {
	ledger     *ledgersvc.Service
	deliveries *deliverysvc.Service
	profiles   *profile.Service
	logger     *slog.Logger
}

func New(ledgerSvc *ledgersvc.Service, deliverySvc *deliverysvc.Service, profileSvc *profile.Service, logger *slog.Logger) (*Coordinator, error) {
	if ledgerSvc == nil || deliverySvc == nil || profileSvc == nil {
		return nil, fmt.Errorf("ledger, delivery, and profile services are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		ledger:     ledgerSvc,
		deliveries: deliverySvc,
		profiles:   profileSvc,
		logger:     logger,
	}, nil
}

// authorizeMutation loads the caller's profile and rejects read-only and
// unknown roles before anything is touched.
func (c *Coordinator) authorizeMutation(ctx context.Context, actorID domain.ActorID) (*profile.ActorProfile, error) {
	caller, err := c.profiles.GetProfile(ctx, actorID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "no profile for actor")
		}
		return nil, err
	}
	if !hierarchy.CanMutate(actorID, []*profile.ActorProfile{caller}) {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "role %q may not mutate records", caller.Role)
	}
	return caller, nil
}

// ReceiveStock records an inbound receipt at the actor's personal
// custodian, creating it lazily on first use.
func (c *Coordinator) ReceiveStock(ctx context.Context, actorID domain.ActorID, quantity int, date time.Time, sourceLabel string) (*ledger.StockTransaction, error) {
	caller, err := c.authorizeMutation(ctx, actorID)
	if err != nil {
		return nil, err
	}
	personal, err := c.ledger.GetOrCreatePersonalCustodian(ctx, actorID, caller.DisplayName)
	if err != nil {
		return nil, err
	}
	return c.ledger.RecordInbound(ctx, personal.ID, quantity, date, sourceLabel)
}

// TransferResult reports the committed legs of a transfer. InboundOnly is
// set when the source was external: stock entered the ledger at the
// destination without an outbound counterpart.
type TransferResult struct {
	Outbound *ledger.StockTransaction `json:"outbound,omitempty"`
	Inbound  *ledger.StockTransaction `json:"inbound"`
}

// PerformTransfer moves stock into the destination custodian. A personal
// source resolves to the actor's own holding (created lazily); an external
// source has no ledger presence, so the movement lands as a single inbound
// entry labeled with the supplier. Any failure leaves both balances and the
// ledger untouched.
func (c *Coordinator) PerformTransfer(ctx context.Context, actorID domain.ActorID, destination domain.CustodianID, quantity int, date time.Time, sourceKind SourceKind, sourceLabel string) (*TransferResult, error) {
	caller, err := c.authorizeMutation(ctx, actorID)
	if err != nil {
		return nil, err
	}

	switch sourceKind {
	case SourcePersonal:
		personal, err := c.ledger.GetOrCreatePersonalCustodian(ctx, actorID, caller.DisplayName)
		if err != nil {
			return nil, err
		}
		outLeg, inLeg, err := c.ledger.Transfer(ctx, personal.ID, destination, quantity, date, sourceLabel)
		if err != nil {
			return nil, err
		}
		return &TransferResult{Outbound: outLeg, Inbound: inLeg}, nil
	case SourceExternal:
		if sourceLabel == "" {
			return nil, dErrors.New(dErrors.CodeMissingField, "external source label is required")
		}
		entry, err := c.ledger.RecordInbound(ctx, destination, quantity, date, sourceLabel)
		if err != nil {
			return nil, err
		}
		return &TransferResult{Inbound: entry}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid source kind %q", sourceKind)
	}
}

// RetrieveStock pulls stock back from a fixed location into the actor's
// personal custodian, as a fresh reverse transfer.
func (c *Coordinator) RetrieveStock(ctx context.Context, actorID domain.ActorID, from domain.CustodianID, quantity int, date time.Time, reasonLabel string) (*TransferResult, error) {
	caller, err := c.authorizeMutation(ctx, actorID)
	if err != nil {
		return nil, err
	}
	personal, err := c.ledger.GetOrCreatePersonalCustodian(ctx, actorID, caller.DisplayName)
	if err != nil {
		return nil, err
	}
	outLeg, inLeg, err := c.ledger.Retrieve(ctx, from, personal.ID, quantity, date, reasonLabel)
	if err != nil {
		return nil, err
	}
	return &TransferResult{Outbound: outLeg, Inbound: inLeg}, nil
}

// DeliveryResult carries the recorded delivery, or the advisory duplicate
// warning the caller must acknowledge before retrying. BalanceWarning is
// set when the source custodian lacked sufficient stock; by policy that is
// surfaced, not rejected.
type DeliveryResult struct {
	Delivery         *delivery.Delivery `json:"delivery,omitempty"`
	DuplicateWarning bool               `json:"duplicate_warning"`
	BalanceWarning   bool               `json:"balance_warning,omitempty"`
}

// PerformDelivery records a dispensation and debits the source custodian.
// The duplicate pre-check is an advisory, not an error: when a match
// exists and the caller has not acknowledged it, the result carries the
// warning and nothing is written. If the ledger debit fails the delivery
// record is removed again, so ledger and deliveries never drift apart.
func (c *Coordinator) PerformDelivery(ctx context.Context, actorID domain.ActorID, draft delivery.Draft, acknowledgedDuplicate bool) (*DeliveryResult, error) {
	if _, err := c.authorizeMutation(ctx, actorID); err != nil {
		return nil, err
	}

	if !acknowledgedDuplicate && !draft.PatientID.IsNil() && !draft.ProductID.IsNil() {
		dup, err := c.deliveries.CheckDuplicate(ctx, draft.PatientID, draft.ProductID)
		if err != nil {
			return nil, err
		}
		if dup {
			return &DeliveryResult{DuplicateWarning: true}, nil
		}
	}

	result := &DeliveryResult{}
	if !draft.CustodianID.IsNil() {
		balance, err := c.ledger.BalanceOf(ctx, draft.CustodianID)
		if err != nil {
			return nil, err
		}
		quantity := draft.Quantity
		if quantity == 0 {
			quantity = 1
		}
		if balance < quantity {
			result.BalanceWarning = true
		}
	}

	d, err := c.deliveries.Record(ctx, actorID, draft)
	if err != nil {
		return nil, err
	}
	if _, err := c.ledger.RecordOutbound(ctx, d.CustodianID, d.Quantity, d.DeliveryDate, "delivery to patient"); err != nil {
		if _, rollbackErr := c.deliveries.Delete(ctx, d.ID); rollbackErr != nil {
			c.logger.ErrorContext(ctx, "delivery rollback after failed debit also failed",
				"delivery_id", d.ID.String(),
				"debit_error", err,
				"rollback_error", rollbackErr,
			)
		}
		return nil, err
	}
	result.Delivery = d
	return result, nil
}

// EditDelivery applies a patch to an existing delivery.
func (c *Coordinator) EditDelivery(ctx context.Context, actorID domain.ActorID, id domain.DeliveryID, patch delivery.Patch) (*delivery.Delivery, error) {
	if _, err := c.authorizeMutation(ctx, actorID); err != nil {
		return nil, err
	}
	return c.deliveries.Update(ctx, id, patch)
}

// DeleteRecord removes a ledger entry or a delivery. Deleting a delivery
// restores the custodian balance it consumed; if that compensating credit
// fails the delivery is reinstated, so the conservation invariant holds
// end to end.
func (c *Coordinator) DeleteRecord(ctx context.Context, actorID domain.ActorID, kind domain.RecordKind, id string) error {
	if _, err := c.authorizeMutation(ctx, actorID); err != nil {
		return err
	}

	switch kind {
	case domain.RecordStock:
		txID, err := domain.ParseTransactionID(id)
		if err != nil {
			return err
		}
		return c.ledger.DeleteTransaction(ctx, txID)
	case domain.RecordDelivery:
		deliveryID, err := domain.ParseDeliveryID(id)
		if err != nil {
			return err
		}
		removed, err := c.deliveries.Delete(ctx, deliveryID)
		if err != nil {
			return err
		}
		if _, err := c.ledger.RecordInbound(ctx, removed.CustodianID, removed.Quantity, time.Now(), "delivery reversal"); err != nil {
			if restoreErr := c.deliveries.Restore(ctx, removed); restoreErr != nil {
				c.logger.ErrorContext(ctx, "delivery restore after failed credit also failed",
					"delivery_id", removed.ID.String(),
					"credit_error", err,
					"restore_error", restoreErr,
				)
			}
			return err
		}
		return nil
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "invalid record kind %q", kind)
	}
}

// GetVisibleDeliveries loads the profile and delivery snapshots in
// parallel and projects them through the caller's visibility closure.
func (c *Coordinator) GetVisibleDeliveries(ctx context.Context, actorID domain.ActorID) ([]*delivery.Delivery, error) {
	var (
		profiles   []*profile.ActorProfile
		deliveries []*delivery.Delivery
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profiles, err = c.profiles.GetAllProfiles(gctx)
		return err
	})
	g.Go(func() (err error) {
		deliveries, err = c.deliveries.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hierarchy.VisibleDeliveries(actorID, profiles, deliveries), nil
}

// GetVisibleStock projects the ledger snapshot through the caller's
// visibility closure.
func (c *Coordinator) GetVisibleStock(ctx context.Context, actorID domain.ActorID) ([]*ledger.StockTransaction, error) {
	var (
		profiles   []*profile.ActorProfile
		custodians []*ledger.Custodian
		txs        []*ledger.StockTransaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profiles, err = c.profiles.GetAllProfiles(gctx)
		return err
	})
	g.Go(func() (err error) {
		custodians, err = c.ledger.ListCustodians(gctx)
		return err
	})
	g.Go(func() (err error) {
		txs, err = c.ledger.ListTransactions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hierarchy.VisibleStock(actorID, profiles, custodians, txs), nil
}

// GetTeamRollup builds the delivery-count tree rooted at the caller.
func (c *Coordinator) GetTeamRollup(ctx context.Context, actorID domain.ActorID) (*hierarchy.Rollup, error) {
	var (
		profiles   []*profile.ActorProfile
		deliveries []*delivery.Delivery
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profiles, err = c.profiles.GetAllProfiles(gctx)
		return err
	})
	g.Go(func() (err error) {
		deliveries, err = c.deliveries.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rollup := hierarchy.TeamRollup(actorID, profiles, deliveries)
	if rollup == nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor has no rollup visibility")
	}
	return rollup, nil
}

// BalanceOf exposes the ledger balance for a custodian.
func (c *Coordinator) BalanceOf(ctx context.Context, custodianID domain.CustodianID) (int, error) {
	return c.ledger.BalanceOf(ctx, custodianID)
}

// ListCustodians returns the custodian directory for transfer destination
// pickers: all fixed locations plus the caller's own personal holding.
func (c *Coordinator) ListCustodians(ctx context.Context, actorID domain.ActorID) ([]*ledger.Custodian, error) {
	all, err := c.ledger.ListCustodians(ctx)
	if err != nil {
		return nil, err
	}
	caller, err := c.profiles.GetProfile(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if caller.Role == domain.RoleAdmin {
		return all, nil
	}
	out := make([]*ledger.Custodian, 0, len(all))
	for _, c := range all {
		if c.Kind == domain.KindFixedLocation || c.OwnerID == actorID {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateFixedLocation registers a clinic/pharmacy custodian. Admin only.
func (c *Coordinator) CreateFixedLocation(ctx context.Context, actorID domain.ActorID, name string) (*ledger.Custodian, error) {
	caller, err := c.profiles.GetProfile(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only admin may register fixed locations")
	}
	return c.ledger.CreateFixedLocation(ctx, name)
}

// UpdateProfile mutates the administrative fields of an actor profile.
// Admin only.
func (c *Coordinator) UpdateProfile(ctx context.Context, actorID, target domain.ActorID, patch profile.Patch) (*profile.ActorProfile, error) {
	caller, err := c.profiles.GetProfile(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only admin may update profiles")
	}
	return c.profiles.UpdateProfile(ctx, target, patch)
}

// TerminateSession discards cached snapshot state when the identity
// collaborator reports a session end.
func (c *Coordinator) TerminateSession(ctx context.Context, actorID domain.ActorID) {
	c.logger.InfoContext(ctx, "session terminated, discarding snapshots", "actor_id", actorID.String())
	c.profiles.InvalidateSnapshot(ctx)
}
