// Package domain holds typed identifiers and closed value sets shared across
// the custody core. Typed IDs prevent cross-entity assignment at compile
// time; construct them via the Parse helpers at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so handing a PatientID where a
// CustodianID is expected fails to compile.
type (
	ActorID       uuid.UUID
	CustodianID   uuid.UUID
	TransactionID uuid.UUID
	DeliveryID    uuid.UUID
	PatientID     uuid.UUID
	PrescriberID  uuid.UUID
	ProductID     uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s id cannot be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s id", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s id cannot be nil", kind)
	}
	return u, nil
}

// ParseActorID constructs an ActorID from external input.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor")
	return ActorID(u), err
}

// ParseCustodianID constructs a CustodianID from external input.
func ParseCustodianID(s string) (CustodianID, error) {
	u, err := parseUUID(s, "custodian")
	return CustodianID(u), err
}

// ParseTransactionID constructs a TransactionID from external input.
func ParseTransactionID(s string) (TransactionID, error) {
	u, err := parseUUID(s, "transaction")
	return TransactionID(u), err
}

// ParseDeliveryID constructs a DeliveryID from external input.
func ParseDeliveryID(s string) (DeliveryID, error) {
	u, err := parseUUID(s, "delivery")
	return DeliveryID(u), err
}

// ParsePatientID constructs a PatientID from external input.
func ParsePatientID(s string) (PatientID, error) {
	u, err := parseUUID(s, "patient")
	return PatientID(u), err
}

// ParsePrescriberID constructs a PrescriberID from external input.
func ParsePrescriberID(s string) (PrescriberID, error) {
	u, err := parseUUID(s, "prescriber")
	return PrescriberID(u), err
}

// ParseProductID constructs a ProductID from external input.
func ParseProductID(s string) (ProductID, error) {
	u, err := parseUUID(s, "product")
	return ProductID(u), err
}

func (id ActorID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id CustodianID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DeliveryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PatientID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id PrescriberID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ProductID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func (id ActorID) String() string       { return uuid.UUID(id).String() }
func (id CustodianID) String() string   { return uuid.UUID(id).String() }
func (id TransactionID) String() string { return uuid.UUID(id).String() }
func (id DeliveryID) String() string    { return uuid.UUID(id).String() }
func (id PatientID) String() string     { return uuid.UUID(id).String() }
func (id PrescriberID) String() string  { return uuid.UUID(id).String() }
func (id ProductID) String() string     { return uuid.UUID(id).String() }

// Text marshaling keeps typed IDs as canonical UUID strings in JSON and
// cache payloads.

func (id ActorID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id CustodianID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id TransactionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id DeliveryID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id PatientID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id PrescriberID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ProductID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *ActorID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CustodianID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TransactionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeliveryID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PatientID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PrescriberID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ProductID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }

// NewActorID generates a fresh actor identifier. Used by tests and seeds;
// production actor IDs come from the identity provider.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// NewCustodianID generates a fresh custodian identifier.
func NewCustodianID() CustodianID { return CustodianID(uuid.New()) }

// NewTransactionID generates a fresh ledger entry identifier.
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }

// NewDeliveryID generates a fresh delivery identifier.
func NewDeliveryID() DeliveryID { return DeliveryID(uuid.New()) }
