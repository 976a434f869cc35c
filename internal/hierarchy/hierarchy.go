// Package hierarchy computes visibility closures and mutation permissions
// over the manager/subordinate tree. Every function here is a pure
// projection over snapshots passed in by the caller; the package holds no
// state, and every role dispatch goes through one closed switch so adding a
// role is a one-place change.
//
// The tree below the implicit admin root is a strict three-level chain:
// line-manager -> district-manager -> field-agent. An agent with no manager
// or a manager with no parent is a valid, visibility-limited leaf. Unknown
// or unset roles always resolve to nothing: fail closed, never open.
package hierarchy

import (
	"custodia/internal/delivery"
	"custodia/internal/ledger"
	"custodia/internal/profile"
	"custodia/pkg/domain"
)

func indexProfiles(profiles []*profile.ActorProfile) map[domain.ActorID]*profile.ActorProfile {
	byID := make(map[domain.ActorID]*profile.ActorProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	return byID
}

// directReports returns actors whose manager is the given actor.
func directReports(profiles []*profile.ActorProfile, managerID domain.ActorID) []*profile.ActorProfile {
	var out []*profile.ActorProfile
	for _, p := range profiles {
		if p.ManagerID != nil && *p.ManagerID == managerID {
			out = append(out, p)
		}
	}
	return out
}

// visibleActorSet computes which dispensing actors the caller may see
// deliveries for. A nil return means "everything" (admin); an empty map
// means nothing.
func visibleActorSet(actorID domain.ActorID, profiles []*profile.ActorProfile) map[domain.ActorID]bool {
	caller, ok := indexProfiles(profiles)[actorID]
	if !ok || caller.Access != domain.AccessApproved {
		return map[domain.ActorID]bool{}
	}

	switch caller.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleFieldAgent:
		return map[domain.ActorID]bool{actorID: true}
	case domain.RoleDistrictManager:
		set := make(map[domain.ActorID]bool)
		for _, sub := range directReports(profiles, actorID) {
			set[sub.ID] = true
		}
		return set
	case domain.RoleLineManager:
		// Two-hop closure: agents under any of the caller's district
		// managers.
		set := make(map[domain.ActorID]bool)
		for _, dm := range directReports(profiles, actorID) {
			for _, agent := range directReports(profiles, dm.ID) {
				set[agent.ID] = true
			}
		}
		return set
	default:
		return map[domain.ActorID]bool{}
	}
}

// VisibleDeliveries filters the delivery snapshot down to what the actor
// may read.
func VisibleDeliveries(actorID domain.ActorID, profiles []*profile.ActorProfile, deliveries []*delivery.Delivery) []*delivery.Delivery {
	set := visibleActorSet(actorID, profiles)
	if set == nil {
		return deliveries
	}
	out := make([]*delivery.Delivery, 0)
	for _, d := range deliveries {
		if set[d.DispensedBy] {
			out = append(out, d)
		}
	}
	return out
}

// VisibleStock filters the ledger snapshot. Admin sees everything; a field
// agent sees only entries on their own personal custodian; managerial roles
// do not inspect raw stock movement at all.
func VisibleStock(actorID domain.ActorID, profiles []*profile.ActorProfile, custodians []*ledger.Custodian, txs []*ledger.StockTransaction) []*ledger.StockTransaction {
	caller, ok := indexProfiles(profiles)[actorID]
	if !ok || caller.Access != domain.AccessApproved {
		return []*ledger.StockTransaction{}
	}

	switch caller.Role {
	case domain.RoleAdmin:
		return txs
	case domain.RoleFieldAgent:
		var own domain.CustodianID
		found := false
		for _, c := range custodians {
			if c.Kind == domain.KindPersonal && c.OwnerID == actorID {
				own = c.ID
				found = true
				break
			}
		}
		if !found {
			return []*ledger.StockTransaction{}
		}
		out := make([]*ledger.StockTransaction, 0)
		for _, tx := range txs {
			if tx.CustodianID == own {
				out = append(out, tx)
			}
		}
		return out
	default:
		return []*ledger.StockTransaction{}
	}
}

// CanMutate reports whether the actor may create, edit, or delete records.
// Field agents and admins may; district and line managers are read-only
// over their visible sets.
func CanMutate(actorID domain.ActorID, profiles []*profile.ActorProfile) bool {
	caller, ok := indexProfiles(profiles)[actorID]
	if !ok || caller.Access != domain.AccessApproved {
		return false
	}
	switch caller.Role {
	case domain.RoleFieldAgent, domain.RoleAdmin:
		return true
	case domain.RoleDistrictManager, domain.RoleLineManager:
		return false
	default:
		return false
	}
}

// Rollup is one node of a team delivery-count tree. Count aggregates
// bottom-up: a manager's count is the sum over Reports.
type Rollup struct {
	Actor   *profile.ActorProfile `json:"actor"`
	Count   int                   `json:"count"`
	Reports []*Rollup             `json:"reports,omitempty"`
}

func countByActor(deliveries []*delivery.Delivery) map[domain.ActorID]int {
	counts := make(map[domain.ActorID]int)
	for _, d := range deliveries {
		counts[d.DispensedBy]++
	}
	return counts
}

func agentNode(p *profile.ActorProfile, counts map[domain.ActorID]int) *Rollup {
	return &Rollup{Actor: p, Count: counts[p.ID]}
}

func districtNode(p *profile.ActorProfile, profiles []*profile.ActorProfile, counts map[domain.ActorID]int) *Rollup {
	node := &Rollup{Actor: p}
	for _, agent := range directReports(profiles, p.ID) {
		child := agentNode(agent, counts)
		node.Count += child.Count
		node.Reports = append(node.Reports, child)
	}
	return node
}

func lineNode(p *profile.ActorProfile, profiles []*profile.ActorProfile, counts map[domain.ActorID]int) *Rollup {
	node := &Rollup{Actor: p}
	for _, dm := range directReports(profiles, p.ID) {
		child := districtNode(dm, profiles, counts)
		node.Count += child.Count
		node.Reports = append(node.Reports, child)
	}
	return node
}

// TeamRollup builds the delivery-count tree rooted at the caller. A
// district manager sees one level of direct subordinates; a line manager
// sees two levels; admin sees the whole forest; anyone else gets only
// their own count. Unknown role yields nil.
func TeamRollup(actorID domain.ActorID, profiles []*profile.ActorProfile, deliveries []*delivery.Delivery) *Rollup {
	caller, ok := indexProfiles(profiles)[actorID]
	if !ok || caller.Access != domain.AccessApproved {
		return nil
	}
	counts := countByActor(deliveries)

	switch caller.Role {
	case domain.RoleFieldAgent:
		return agentNode(caller, counts)
	case domain.RoleDistrictManager:
		return districtNode(caller, profiles, counts)
	case domain.RoleLineManager:
		return lineNode(caller, profiles, counts)
	case domain.RoleAdmin:
		root := &Rollup{Actor: caller}
		for _, p := range profiles {
			if p.Role == domain.RoleLineManager {
				child := lineNode(p, profiles, counts)
				root.Count += child.Count
				root.Reports = append(root.Reports, child)
			}
		}
		return root
	default:
		return nil
	}
}
