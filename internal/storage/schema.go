// Package storage owns the PostgreSQL schema for the custody service.
package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is applied at startup. Statements are idempotent so repeated
// boots are safe. The partial unique index on custodians backs the
// idempotent lazy-create of personal custodians across processes.
const Schema = `
CREATE TABLE IF NOT EXISTS custodians (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL CHECK (kind IN ('personal', 'fixed-location')),
	owner_id   UUID,
	balance    BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS custodians_one_personal_per_owner
	ON custodians (owner_id) WHERE kind = 'personal';

CREATE TABLE IF NOT EXISTS stock_transactions (
	id                UUID PRIMARY KEY,
	custodian_id      UUID NOT NULL REFERENCES custodians (id),
	quantity          BIGINT NOT NULL,
	tx_date           TIMESTAMPTZ NOT NULL,
	label             TEXT NOT NULL DEFAULT '',
	counterpart_id    UUID,
	counterpart_tx_id UUID,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS stock_transactions_custodian
	ON stock_transactions (custodian_id, created_at);

CREATE TABLE IF NOT EXISTS deliveries (
	id                UUID PRIMARY KEY,
	patient_id        UUID NOT NULL,
	prescriber_id     UUID NOT NULL,
	product_id        UUID NOT NULL,
	quantity          BIGINT NOT NULL CHECK (quantity > 0),
	dispensed_by      UUID NOT NULL,
	custodian_id      UUID NOT NULL REFERENCES custodians (id),
	delivery_date     TIMESTAMPTZ NOT NULL,
	prescription_date TIMESTAMPTZ NOT NULL,
	educator_name     TEXT NOT NULL DEFAULT '',
	educator_date     TIMESTAMPTZ,
	notes             TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS deliveries_patient_product
	ON deliveries (patient_id, product_id);

CREATE TABLE IF NOT EXISTS actor_profiles (
	id           UUID PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL,
	manager_id   UUID,
	access       TEXT NOT NULL DEFAULT 'pending',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
