package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists deliveries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const deliveryColumns = `id, patient_id, prescriber_id, product_id, quantity, dispensed_by,
	custodian_id, delivery_date, prescription_date, educator_name, educator_date, notes, created_at`

func (s *PostgresStore) Create(ctx context.Context, d *Delivery) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var educatorDate any
	if !d.EducatorDate.IsZero() {
		educatorDate = d.EducatorDate
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.UUID(d.ID), uuid.UUID(d.PatientID), uuid.UUID(d.PrescriberID), uuid.UUID(d.ProductID),
		d.Quantity, uuid.UUID(d.DispensedBy), uuid.UUID(d.CustodianID),
		d.DeliveryDate, d.PrescriptionDate, d.EducatorName, educatorDate, d.Notes, createdAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func scanDelivery(scan func(dest ...any) error) (*Delivery, error) {
	var d Delivery
	var id, patient, prescriber, product, actor, custodian uuid.UUID
	var educatorDate sql.NullTime
	err := scan(&id, &patient, &prescriber, &product, &d.Quantity, &actor, &custodian,
		&d.DeliveryDate, &d.PrescriptionDate, &d.EducatorName, &educatorDate, &d.Notes, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	d.ID = domain.DeliveryID(id)
	d.PatientID = domain.PatientID(patient)
	d.PrescriberID = domain.PrescriberID(prescriber)
	d.ProductID = domain.ProductID(product)
	d.DispensedBy = domain.ActorID(actor)
	d.CustodianID = domain.CustodianID(custodian)
	if educatorDate.Valid {
		d.EducatorDate = educatorDate.Time
	}
	return &d, nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.DeliveryID) (*Delivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, uuid.UUID(id))
	return scanDelivery(row.Scan)
}

func (s *PostgresStore) Update(ctx context.Context, d *Delivery) error {
	var educatorDate any
	if !d.EducatorDate.IsZero() {
		educatorDate = d.EducatorDate
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET
			prescriber_id = $2, delivery_date = $3, prescription_date = $4,
			educator_name = $5, educator_date = $6, notes = $7
		WHERE id = $1
	`, uuid.UUID(d.ID), uuid.UUID(d.PrescriberID), d.DeliveryDate, d.PrescriptionDate,
		d.EducatorName, educatorDate, d.Notes)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.DeliveryID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete delivery: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByPatientProduct(ctx context.Context, patient domain.PatientID, product domain.ProductID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM deliveries WHERE patient_id = $1 AND product_id = $2`,
		uuid.UUID(patient), uuid.UUID(product)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}
