package domain

import dErrors "custodia/pkg/domain-errors"

// Role is an actor's position in the manager/subordinate tree.
// The set is closed: visibility and mutation rules dispatch on it
// exhaustively, and an unknown role always resolves to no access.
type Role string

const (
	RoleFieldAgent      Role = "field-agent"
	RoleDistrictManager Role = "district-manager"
	RoleLineManager     Role = "line-manager"
	RoleAdmin           Role = "admin"
)

var validRoles = map[Role]bool{
	RoleFieldAgent:      true,
	RoleDistrictManager: true,
	RoleLineManager:     true,
	RoleAdmin:           true,
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid role %q", s)
	}
	return r, nil
}

// IsValid checks the role against the closed set. Callers must treat an
// invalid role as "no access", never as a default.
func (r Role) IsValid() bool { return validRoles[r] }

func (r Role) String() string { return string(r) }

// AccessStatus gates whether an actor may use the system at all.
type AccessStatus string

const (
	AccessApproved AccessStatus = "approved"
	AccessPending  AccessStatus = "pending"
)

// CustodianKind distinguishes a person's own holding from a fixed
// clinic/pharmacy location.
type CustodianKind string

const (
	KindPersonal      CustodianKind = "personal"
	KindFixedLocation CustodianKind = "fixed-location"
)

// ParseCustodianKind constructs a CustodianKind from external input.
func ParseCustodianKind(s string) (CustodianKind, error) {
	switch k := CustodianKind(s); k {
	case KindPersonal, KindFixedLocation:
		return k, nil
	default:
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid custodian kind %q", s)
	}
}

// RecordKind selects which record family a delete targets.
type RecordKind string

const (
	RecordStock    RecordKind = "stock"
	RecordDelivery RecordKind = "delivery"
)

// ParseRecordKind constructs a RecordKind from external input.
func ParseRecordKind(s string) (RecordKind, error) {
	switch k := RecordKind(s); k {
	case RecordStock, RecordDelivery:
		return k, nil
	default:
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid record kind %q", s)
	}
}
