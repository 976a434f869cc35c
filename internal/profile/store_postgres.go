package profile

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

// PostgresStore persists actor profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, display_name, role, manager_id, access, updated_at`

func scanProfile(scan func(dest ...any) error) (*ActorProfile, error) {
	var p ActorProfile
	var id uuid.UUID
	var role, access string
	var manager sql.Null[uuid.UUID]
	err := scan(&id, &p.DisplayName, &role, &manager, &access, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.ID = domain.ActorID(id)
	p.Role = domain.Role(role)
	p.Access = domain.AccessStatus(access)
	if manager.Valid {
		mid := domain.ActorID(manager.V)
		p.ManagerID = &mid
	}
	return &p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.ActorID) (*ActorProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM actor_profiles WHERE id = $1`, uuid.UUID(id))
	return scanProfile(row.Scan)
}

func (s *PostgresStore) List(ctx context.Context) ([]*ActorProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM actor_profiles ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*ActorProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, p *ActorProfile) error {
	var manager any
	if p.ManagerID != nil {
		manager = uuid.UUID(*p.ManagerID)
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actor_profiles (id, display_name, role, manager_id, access, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			manager_id = EXCLUDED.manager_id,
			access = EXCLUDED.access,
			updated_at = EXCLUDED.updated_at
	`, uuid.UUID(p.ID), p.DisplayName, string(p.Role), manager, string(p.Access), updatedAt)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
