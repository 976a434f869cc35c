package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/delivery"
	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type DeliveryServiceSuite struct {
	suite.Suite
	store   *delivery.InMemoryStore
	service *Service
	ctx     context.Context
	actorID domain.ActorID
}

func TestDeliveryServiceSuite(t *testing.T) {
	suite.Run(t, new(DeliveryServiceSuite))
}

func (s *DeliveryServiceSuite) SetupTest() {
	s.store = delivery.NewInMemoryStore()
	s.ctx = context.Background()
	s.actorID = domain.NewActorID()

	var err error
	s.service, err = New(s.store)
	s.Require().NoError(err)
}

func (s *DeliveryServiceSuite) newDraft() delivery.Draft {
	return delivery.Draft{
		PatientID:        domain.PatientID(domain.NewActorID()),
		PrescriberID:     domain.PrescriberID(domain.NewActorID()),
		ProductID:        domain.ProductID(domain.NewActorID()),
		Quantity:         1,
		CustodianID:      domain.NewCustodianID(),
		DeliveryDate:     time.Now(),
		PrescriptionDate: time.Now().AddDate(0, 0, -7),
	}
}

func (s *DeliveryServiceSuite) TestRecord() {
	s.Run("persists a valid draft", func() {
		draft := s.newDraft()
		d, err := s.service.Record(s.ctx, s.actorID, draft)
		s.Require().NoError(err)
		s.Equal(draft.PatientID, d.PatientID)
		s.Equal(s.actorID, d.DispensedBy)
		s.False(d.ID.IsNil())

		found, err := s.service.Get(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(d.ID, found.ID)
	})

	s.Run("quantity defaults to one", func() {
		draft := s.newDraft()
		draft.Quantity = 0

		d, err := s.service.Record(s.ctx, s.actorID, draft)
		s.Require().NoError(err)
		s.Equal(1, d.Quantity)
	})

	s.Run("rejects negative quantity", func() {
		draft := s.newDraft()
		draft.Quantity = -2

		_, err := s.service.Record(s.ctx, s.actorID, draft)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("rejects drafts with missing references", func() {
		missing := []struct {
			name   string
			mutate func(*delivery.Draft)
		}{
			{"patient", func(d *delivery.Draft) { d.PatientID = domain.PatientID{} }},
			{"prescriber", func(d *delivery.Draft) { d.PrescriberID = domain.PrescriberID{} }},
			{"product", func(d *delivery.Draft) { d.ProductID = domain.ProductID{} }},
			{"custodian", func(d *delivery.Draft) { d.CustodianID = domain.CustodianID{} }},
		}
		for _, tc := range missing {
			draft := s.newDraft()
			tc.mutate(&draft)

			_, err := s.service.Record(s.ctx, s.actorID, draft)
			s.True(dErrors.HasCode(err, dErrors.CodeMissingField), "expected missing_field for %s", tc.name)
		}
	})
}

func (s *DeliveryServiceSuite) TestCheckDuplicate() {
	s.Run("matches on patient and product together", func() {
		draft := s.newDraft()
		_, err := s.service.Record(s.ctx, s.actorID, draft)
		s.Require().NoError(err)

		dup, err := s.service.CheckDuplicate(s.ctx, draft.PatientID, draft.ProductID)
		s.Require().NoError(err)
		s.True(dup)
	})

	s.Run("same patient with a different product is no duplicate", func() {
		draft := s.newDraft()
		_, err := s.service.Record(s.ctx, s.actorID, draft)
		s.Require().NoError(err)

		dup, err := s.service.CheckDuplicate(s.ctx, draft.PatientID, domain.ProductID(domain.NewActorID()))
		s.Require().NoError(err)
		s.False(dup)
	})

	s.Run("same product for a different patient is no duplicate", func() {
		draft := s.newDraft()
		_, err := s.service.Record(s.ctx, s.actorID, draft)
		s.Require().NoError(err)

		dup, err := s.service.CheckDuplicate(s.ctx, domain.PatientID(domain.NewActorID()), draft.ProductID)
		s.Require().NoError(err)
		s.False(dup)
	})

	s.Run("matches arbitrarily old deliveries", func() {
		draft := s.newDraft()
		draft.DeliveryDate = time.Now().AddDate(-2, 0, 0)
		_, err := s.service.Record(s.ctx, s.actorID, draft)
		s.Require().NoError(err)

		dup, err := s.service.CheckDuplicate(s.ctx, draft.PatientID, draft.ProductID)
		s.Require().NoError(err)
		s.True(dup)
	})
}

func (s *DeliveryServiceSuite) TestUpdate() {
	s.Run("patches mutable fields only", func() {
		d, err := s.service.Record(s.ctx, s.actorID, s.newDraft())
		s.Require().NoError(err)

		newPrescriber := domain.PrescriberID(domain.NewActorID())
		notes := "patient counselled on storage"
		updated, err := s.service.Update(s.ctx, d.ID, delivery.Patch{
			PrescriberID: &newPrescriber,
			Notes:        &notes,
		})
		s.Require().NoError(err)
		s.Equal(newPrescriber, updated.PrescriberID)
		s.Equal(notes, updated.Notes)

		// Source custodian and dispensing actor survive any patch.
		s.Equal(d.CustodianID, updated.CustodianID)
		s.Equal(d.DispensedBy, updated.DispensedBy)
	})

	s.Run("unknown delivery returns not found", func() {
		_, err := s.service.Update(s.ctx, domain.NewDeliveryID(), delivery.Patch{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DeliveryServiceSuite) TestDeleteAndRestore() {
	s.Run("delete returns the removed record", func() {
		d, err := s.service.Record(s.ctx, s.actorID, s.newDraft())
		s.Require().NoError(err)

		removed, err := s.service.Delete(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(d.ID, removed.ID)
		s.Equal(d.Quantity, removed.Quantity)

		_, err = s.service.Get(s.ctx, d.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("restore reinstates the record under its original id", func() {
		d, err := s.service.Record(s.ctx, s.actorID, s.newDraft())
		s.Require().NoError(err)
		removed, err := s.service.Delete(s.ctx, d.ID)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Restore(s.ctx, removed))

		found, err := s.service.Get(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(d.PatientID, found.PatientID)
	})

	s.Run("deleting twice returns not found", func() {
		d, err := s.service.Record(s.ctx, s.actorID, s.newDraft())
		s.Require().NoError(err)
		_, err = s.service.Delete(s.ctx, d.ID)
		s.Require().NoError(err)

		_, err = s.service.Delete(s.ctx, d.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
