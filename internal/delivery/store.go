package delivery

import (
	"context"

	"custodia/pkg/domain"
)

// Store is the persistence boundary for deliveries. Implementations return
// pkg/platform/sentinel errors.
type Store interface {
	Create(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, id domain.DeliveryID) (*Delivery, error)
	Update(ctx context.Context, d *Delivery) error
	Delete(ctx context.Context, id domain.DeliveryID) error
	List(ctx context.Context) ([]*Delivery, error)
	// CountByPatientProduct scans the full history; the duplicate check is
	// deliberately unbounded in time.
	CountByPatientProduct(ctx context.Context, patient domain.PatientID, product domain.ProductID) (int, error)
}
