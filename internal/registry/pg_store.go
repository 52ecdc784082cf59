package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	err := row.Scan(
		&r.ID,
		&r.Kind,
		&r.Name,
		&r.Retired,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *PgStore) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, name, retired, created_at, updated_at
		FROM resources
		WHERE id = $1
	`, id)
	return scanResource(row)
}

func (s *PgStore) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	var c Client
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PgStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, name, species, deceased, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.ClientID, &p.Name, &p.Species, &p.Deceased, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) CreateResource(ctx context.Context, kind ResourceKind, name string) (*Resource, error) {
	id := uuid.New()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO resources (id, kind, name, retired, created_at, updated_at)
		VALUES ($1, $2, $3, false, now(), now())
		RETURNING id, kind, name, retired, created_at, updated_at
	`, id, kind, name)

	return scanResource(row)
}

func (s *PgStore) ListResources(ctx context.Context, kind *ResourceKind) ([]Resource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, name, retired, created_at, updated_at
		FROM resources
		WHERE ($1::text IS NULL OR kind = $1)
		ORDER BY name
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (s *PgStore) RetireResource(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resources
		SET retired = true,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrResourceNotFound
	}
	return nil
}
