// Package service implements the delivery recorder: duplicate detection,
// draft validation, and delivery lifecycle. The compensating ledger credit
// on deletion is orchestrated by the coordinator, which owns cross-store
// consistency.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"custodia/internal/delivery"
	"custodia/internal/platform/metrics"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

type Service struct {
	store   delivery.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store delivery.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("delivery store is required")
	}
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func translate(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, msg)
	}
}

// CheckDuplicate reports whether any existing delivery matches both patient
// and product. The scan covers the full history by policy; it is not
// time-bounded.
func (s *Service) CheckDuplicate(ctx context.Context, patient domain.PatientID, product domain.ProductID) (bool, error) {
	n, err := s.store.CountByPatientProduct(ctx, patient, product)
	if err != nil {
		return false, translate(err, "check duplicate delivery")
	}
	if n > 0 && s.metrics != nil {
		s.metrics.DuplicateWarnings.Inc()
	}
	return n > 0, nil
}

func validateDraft(draft delivery.Draft) error {
	if draft.PatientID.IsNil() {
		return dErrors.New(dErrors.CodeMissingField, "patient is required")
	}
	if draft.PrescriberID.IsNil() {
		return dErrors.New(dErrors.CodeMissingField, "prescriber is required")
	}
	if draft.ProductID.IsNil() {
		return dErrors.New(dErrors.CodeMissingField, "product is required")
	}
	if draft.CustodianID.IsNil() {
		return dErrors.New(dErrors.CodeMissingField, "source custodian is required")
	}
	if draft.Quantity < 0 {
		return dErrors.Newf(dErrors.CodeInvalidQuantity, "delivery quantity must be positive, got %d", draft.Quantity)
	}
	return nil
}

// Record validates the draft and persists a delivery dispensed by actorID.
// It does not touch the ledger.
func (s *Service) Record(ctx context.Context, actorID domain.ActorID, draft delivery.Draft) (*delivery.Delivery, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	quantity := draft.Quantity
	if quantity == 0 {
		quantity = 1
	}

	d := &delivery.Delivery{
		ID:               domain.NewDeliveryID(),
		PatientID:        draft.PatientID,
		PrescriberID:     draft.PrescriberID,
		ProductID:        draft.ProductID,
		Quantity:         quantity,
		DispensedBy:      actorID,
		CustodianID:      draft.CustodianID,
		DeliveryDate:     draft.DeliveryDate,
		PrescriptionDate: draft.PrescriptionDate,
		EducatorName:     draft.EducatorName,
		EducatorDate:     draft.EducatorDate,
		Notes:            draft.Notes,
		CreatedAt:        time.Now(),
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, translate(err, "record delivery")
	}
	if s.metrics != nil {
		s.metrics.DeliveriesRecorded.Inc()
	}
	return d, nil
}

// Get returns one delivery by id.
func (s *Service) Get(ctx context.Context, id domain.DeliveryID) (*delivery.Delivery, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "read delivery")
	}
	return d, nil
}

// Update applies a patch to an existing delivery. The stock source and
// dispensing actor are immutable once recorded; correcting those means
// deleting and re-recording.
func (s *Service) Update(ctx context.Context, id domain.DeliveryID, patch delivery.Patch) (*delivery.Delivery, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "read delivery for update")
	}
	if patch.PrescriberID != nil {
		d.PrescriberID = *patch.PrescriberID
	}
	if patch.DeliveryDate != nil {
		d.DeliveryDate = *patch.DeliveryDate
	}
	if patch.PrescriptionDate != nil {
		d.PrescriptionDate = *patch.PrescriptionDate
	}
	if patch.EducatorName != nil {
		d.EducatorName = *patch.EducatorName
	}
	if patch.EducatorDate != nil {
		d.EducatorDate = *patch.EducatorDate
	}
	if patch.Notes != nil {
		d.Notes = *patch.Notes
	}
	if err := s.store.Update(ctx, d); err != nil {
		return nil, translate(err, "update delivery")
	}
	return d, nil
}

// Delete removes a delivery and returns the removed record so the caller
// can restore the custodian balance it consumed.
func (s *Service) Delete(ctx context.Context, id domain.DeliveryID) (*delivery.Delivery, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "read delivery for delete")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, translate(err, "delete delivery")
	}
	return d, nil
}

// Restore re-inserts a previously deleted delivery unchanged, id included.
// Used by the coordinator to roll back a delete whose compensating ledger
// credit failed.
func (s *Service) Restore(ctx context.Context, d *delivery.Delivery) error {
	if err := s.store.Create(ctx, d); err != nil {
		return translate(err, "restore delivery")
	}
	return nil
}

// List returns the full delivery snapshot. Visibility filtering is the
// caller's responsibility.
func (s *Service) List(ctx context.Context) ([]*delivery.Delivery, error) {
	ds, err := s.store.List(ctx)
	if err != nil {
		return nil, translate(err, "list deliveries")
	}
	return ds, nil
}
