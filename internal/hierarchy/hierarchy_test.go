package hierarchy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/delivery"
	"custodia/internal/ledger"
	"custodia/internal/profile"
	"custodia/pkg/domain"
)

// The fixture tree:
//
//	admin
//	└── line
//	    ├── districtA
//	    │   ├── agent1
//	    │   └── agent2
//	    └── districtB
//	        └── agent3
type HierarchySuite struct {
	suite.Suite

	admin     *profile.ActorProfile
	line      *profile.ActorProfile
	districtA *profile.ActorProfile
	districtB *profile.ActorProfile
	agent1    *profile.ActorProfile
	agent2    *profile.ActorProfile
	agent3    *profile.ActorProfile

	profiles []*profile.ActorProfile
}

func TestHierarchySuite(t *testing.T) {
	suite.Run(t, new(HierarchySuite))
}

func newProfile(role domain.Role, manager *profile.ActorProfile) *profile.ActorProfile {
	p := &profile.ActorProfile{
		ID:        domain.NewActorID(),
		Role:      role,
		Access:    domain.AccessApproved,
		UpdatedAt: time.Now(),
	}
	if manager != nil {
		id := manager.ID
		p.ManagerID = &id
	}
	return p
}

func (s *HierarchySuite) SetupTest() {
	s.admin = newProfile(domain.RoleAdmin, nil)
	s.line = newProfile(domain.RoleLineManager, s.admin)
	s.districtA = newProfile(domain.RoleDistrictManager, s.line)
	s.districtB = newProfile(domain.RoleDistrictManager, s.line)
	s.agent1 = newProfile(domain.RoleFieldAgent, s.districtA)
	s.agent2 = newProfile(domain.RoleFieldAgent, s.districtA)
	s.agent3 = newProfile(domain.RoleFieldAgent, s.districtB)

	s.profiles = []*profile.ActorProfile{
		s.admin, s.line, s.districtA, s.districtB, s.agent1, s.agent2, s.agent3,
	}
}

func deliveryBy(actorID domain.ActorID) *delivery.Delivery {
	return &delivery.Delivery{
		ID:          domain.NewDeliveryID(),
		DispensedBy: actorID,
		Quantity:    1,
	}
}

func (s *HierarchySuite) TestVisibleDeliveries() {
	all := []*delivery.Delivery{
		deliveryBy(s.agent1.ID),
		deliveryBy(s.agent2.ID),
		deliveryBy(s.agent3.ID),
	}

	s.Run("admin sees everything", func() {
		s.Len(VisibleDeliveries(s.admin.ID, s.profiles, all), 3)
	})

	s.Run("field agent sees only their own", func() {
		visible := VisibleDeliveries(s.agent1.ID, s.profiles, all)
		s.Require().Len(visible, 1)
		s.Equal(s.agent1.ID, visible[0].DispensedBy)
	})

	s.Run("district manager sees direct agents only", func() {
		visible := VisibleDeliveries(s.districtA.ID, s.profiles, all)
		s.Len(visible, 2)
		for _, d := range visible {
			s.NotEqual(s.agent3.ID, d.DispensedBy)
		}
	})

	s.Run("line manager sees the two-hop closure", func() {
		s.Len(VisibleDeliveries(s.line.ID, s.profiles, all), 3)
	})

	s.Run("managers do not see their own deliveries implicitly", func() {
		withManagerDelivery := append(all, deliveryBy(s.districtA.ID))
		visible := VisibleDeliveries(s.districtA.ID, s.profiles, withManagerDelivery)
		s.Len(visible, 2)
	})

	s.Run("unknown actor sees nothing", func() {
		s.Empty(VisibleDeliveries(domain.NewActorID(), s.profiles, all))
	})

	s.Run("unknown role sees nothing", func() {
		stranger := newProfile(domain.Role("intern"), nil)
		s.Empty(VisibleDeliveries(stranger.ID, append(s.profiles, stranger), all))
	})

	s.Run("pending access sees nothing", func() {
		s.agent1.Access = domain.AccessPending
		s.Empty(VisibleDeliveries(s.agent1.ID, s.profiles, all))
	})
}

func (s *HierarchySuite) TestVisibleStock() {
	personal := &ledger.Custodian{
		ID:      domain.NewCustodianID(),
		Kind:    domain.KindPersonal,
		OwnerID: s.agent1.ID,
	}
	clinic := &ledger.Custodian{
		ID:   domain.NewCustodianID(),
		Kind: domain.KindFixedLocation,
	}
	custodians := []*ledger.Custodian{personal, clinic}
	txs := []*ledger.StockTransaction{
		{ID: domain.NewTransactionID(), CustodianID: personal.ID, Quantity: 5},
		{ID: domain.NewTransactionID(), CustodianID: clinic.ID, Quantity: 3},
	}

	s.Run("admin sees the whole ledger", func() {
		s.Len(VisibleStock(s.admin.ID, s.profiles, custodians, txs), 2)
	})

	s.Run("field agent sees only their personal custodian", func() {
		visible := VisibleStock(s.agent1.ID, s.profiles, custodians, txs)
		s.Require().Len(visible, 1)
		s.Equal(personal.ID, visible[0].CustodianID)
	})

	s.Run("agent without a personal custodian sees nothing", func() {
		s.Empty(VisibleStock(s.agent2.ID, s.profiles, custodians, txs))
	})

	s.Run("managers see no raw stock movement", func() {
		s.Empty(VisibleStock(s.districtA.ID, s.profiles, custodians, txs))
		s.Empty(VisibleStock(s.line.ID, s.profiles, custodians, txs))
	})
}

func (s *HierarchySuite) TestCanMutate() {
	s.Run("field agent and admin may mutate", func() {
		s.True(CanMutate(s.agent1.ID, s.profiles))
		s.True(CanMutate(s.admin.ID, s.profiles))
	})

	s.Run("managers are read-only", func() {
		s.False(CanMutate(s.districtA.ID, s.profiles))
		s.False(CanMutate(s.line.ID, s.profiles))
	})

	s.Run("unknown actor may not mutate", func() {
		s.False(CanMutate(domain.NewActorID(), s.profiles))
	})

	s.Run("pending access may not mutate", func() {
		s.agent1.Access = domain.AccessPending
		s.False(CanMutate(s.agent1.ID, s.profiles))
	})
}

func (s *HierarchySuite) TestTeamRollup() {
	deliveries := []*delivery.Delivery{
		deliveryBy(s.agent1.ID),
		deliveryBy(s.agent1.ID),
		deliveryBy(s.agent2.ID),
		deliveryBy(s.agent3.ID),
	}

	s.Run("field agent gets only their own count", func() {
		rollup := TeamRollup(s.agent1.ID, s.profiles, deliveries)
		s.Require().NotNil(rollup)
		s.Equal(2, rollup.Count)
		s.Empty(rollup.Reports)
	})

	s.Run("district manager aggregates direct agents", func() {
		rollup := TeamRollup(s.districtA.ID, s.profiles, deliveries)
		s.Require().NotNil(rollup)
		s.Equal(3, rollup.Count)
		s.Len(rollup.Reports, 2)
	})

	s.Run("line manager aggregates two levels bottom-up", func() {
		rollup := TeamRollup(s.line.ID, s.profiles, deliveries)
		s.Require().NotNil(rollup)
		s.Equal(4, rollup.Count)
		s.Require().Len(rollup.Reports, 2)

		total := 0
		for _, district := range rollup.Reports {
			total += district.Count
		}
		s.Equal(rollup.Count, total)
	})

	s.Run("admin gets the whole forest", func() {
		rollup := TeamRollup(s.admin.ID, s.profiles, deliveries)
		s.Require().NotNil(rollup)
		s.Equal(4, rollup.Count)
		s.Len(rollup.Reports, 1)
	})

	s.Run("unknown role yields nil", func() {
		stranger := newProfile(domain.Role("intern"), nil)
		s.Nil(TeamRollup(stranger.ID, append(s.profiles, stranger), deliveries))
	})

	s.Run("dangling manager reference limits visibility without failing", func() {
		orphan := newProfile(domain.RoleFieldAgent, nil)
		ghost := domain.NewActorID()
		orphan.ManagerID = &ghost

		rollup := TeamRollup(orphan.ID, append(s.profiles, orphan), deliveries)
		s.Require().NotNil(rollup)
		s.Equal(0, rollup.Count)
	})
}
