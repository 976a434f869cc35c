package delivery

import (
	"time"

	"custodia/pkg/domain"
)

// Delivery records one dispensation of the product to a patient. It
// references a custodian as its stock source but does not itself touch the
// ledger; the coordinator owns the accompanying ledger writes.
type Delivery struct {
	ID               domain.DeliveryID   `json:"id"`
	PatientID        domain.PatientID    `json:"patient_id"`
	PrescriberID     domain.PrescriberID `json:"prescriber_id"`
	ProductID        domain.ProductID    `json:"product_id"`
	Quantity         int                 `json:"quantity"`
	DispensedBy      domain.ActorID      `json:"dispensed_by"`
	CustodianID      domain.CustodianID  `json:"custodian_id"`
	DeliveryDate     time.Time           `json:"delivery_date"`
	PrescriptionDate time.Time           `json:"prescription_date"`
	EducatorName     string              `json:"educator_name,omitempty"`
	EducatorDate     time.Time           `json:"educator_date,omitzero"`
	Notes            string              `json:"notes,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Draft is the caller-supplied input for recording a delivery. Quantity
// defaults to 1 when zero; patient, prescriber, product, and custodian are
// required.
type Draft struct {
	PatientID        domain.PatientID    `json:"patient_id"`
	PrescriberID     domain.PrescriberID `json:"prescriber_id"`
	ProductID        domain.ProductID    `json:"product_id"`
	Quantity         int                 `json:"quantity"`
	CustodianID      domain.CustodianID  `json:"custodian_id"`
	DeliveryDate     time.Time           `json:"delivery_date"`
	PrescriptionDate time.Time           `json:"prescription_date"`
	EducatorName     string              `json:"educator_name"`
	EducatorDate     time.Time           `json:"educator_date"`
	Notes            string              `json:"notes"`
}

// Patch carries the mutable fields of an update; nil pointers leave the
// stored value untouched.
type Patch struct {
	PrescriberID     *domain.PrescriberID `json:"prescriber_id,omitempty"`
	DeliveryDate     *time.Time           `json:"delivery_date,omitempty"`
	PrescriptionDate *time.Time           `json:"prescription_date,omitempty"`
	EducatorName     *string              `json:"educator_name,omitempty"`
	EducatorDate     *time.Time           `json:"educator_date,omitempty"`
	Notes            *string              `json:"notes,omitempty"`
}
