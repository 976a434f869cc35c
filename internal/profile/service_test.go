package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type ProfileServiceSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestProfileServiceSuite(t *testing.T) {
	suite.Run(t, new(ProfileServiceSuite))
}

func (s *ProfileServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *ProfileServiceSuite) seed(role domain.Role, access domain.AccessStatus) *ActorProfile {
	p := &ActorProfile{
		ID:        domain.NewActorID(),
		Role:      role,
		Access:    access,
		UpdatedAt: time.Now(),
	}
	s.Require().NoError(s.store.Save(s.ctx, p))
	return p
}

func (s *ProfileServiceSuite) TestGetProfile() {
	svc, err := New(s.store)
	s.Require().NoError(err)

	s.Run("returns the stored profile", func() {
		seeded := s.seed(domain.RoleFieldAgent, domain.AccessApproved)
		p, err := svc.GetProfile(s.ctx, seeded.ID)
		s.Require().NoError(err)
		s.Equal(domain.RoleFieldAgent, p.Role)
	})

	s.Run("unknown actor returns not found", func() {
		_, err := svc.GetProfile(s.ctx, domain.NewActorID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ProfileServiceSuite) TestBootstrapOverride() {
	bootstrapID := domain.NewActorID()
	svc, err := New(s.store, WithBootstrapAdmin(bootstrapID))
	s.Require().NoError(err)

	s.Run("resolves without any stored record", func() {
		p, err := svc.GetProfile(s.ctx, bootstrapID)
		s.Require().NoError(err)
		s.Equal(domain.RoleAdmin, p.Role)
		s.Equal(domain.AccessApproved, p.Access)
	})

	s.Run("appears in the snapshot without any stored record", func() {
		s.seed(domain.RoleFieldAgent, domain.AccessApproved)

		profiles, err := svc.GetAllProfiles(s.ctx)
		s.Require().NoError(err)

		var bootstrap *ActorProfile
		for _, p := range profiles {
			if p.ID == bootstrapID {
				bootstrap = p
			}
		}
		s.Require().NotNil(bootstrap, "snapshot must contain the bootstrap admin")
		s.Equal(domain.RoleAdmin, bootstrap.Role)
		s.Equal(domain.AccessApproved, bootstrap.Access)
		s.Len(profiles, 2)
	})

	s.Run("overrides a stored record that disagrees", func() {
		stored := &ActorProfile{
			ID:     bootstrapID,
			Role:   domain.RoleFieldAgent,
			Access: domain.AccessPending,
		}
		s.Require().NoError(s.store.Save(s.ctx, stored))

		p, err := svc.GetProfile(s.ctx, bootstrapID)
		s.Require().NoError(err)
		s.Equal(domain.RoleAdmin, p.Role)
		s.Equal(domain.AccessApproved, p.Access)
	})

	s.Run("applies in snapshot listings too", func() {
		profiles, err := svc.GetAllProfiles(s.ctx)
		s.Require().NoError(err)
		for _, p := range profiles {
			if p.ID == bootstrapID {
				s.Equal(domain.RoleAdmin, p.Role)
			}
		}
	})
}

func (s *ProfileServiceSuite) TestUpdateProfile() {
	svc, err := New(s.store)
	s.Require().NoError(err)

	s.Run("patches role, manager, and access", func() {
		target := s.seed(domain.RoleFieldAgent, domain.AccessPending)
		manager := s.seed(domain.RoleDistrictManager, domain.AccessApproved)

		role := domain.RoleFieldAgent
		access := domain.AccessApproved
		updated, err := svc.UpdateProfile(s.ctx, target.ID, Patch{
			Role:      &role,
			ManagerID: &manager.ID,
			Access:    &access,
		})
		s.Require().NoError(err)
		s.Equal(domain.AccessApproved, updated.Access)
		s.Require().NotNil(updated.ManagerID)
		s.Equal(manager.ID, *updated.ManagerID)
	})

	s.Run("rejects an invalid role", func() {
		target := s.seed(domain.RoleFieldAgent, domain.AccessApproved)
		bogus := domain.Role("intern")
		_, err := svc.UpdateProfile(s.ctx, target.ID, Patch{Role: &bogus})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown target returns not found", func() {
		_, err := svc.UpdateProfile(s.ctx, domain.NewActorID(), Patch{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
