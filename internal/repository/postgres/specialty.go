package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
)

type specialtyRepository struct {
	BaseRepository
}

func NewSpecialtyRepository(base BaseRepository) repository.SpecialtyRepository {
	return &specialtyRepository{base}
}

func (r *specialtyRepository) List(ctx context.Context) ([]*model.Specialty, error) {
	specialties := []*model.Specialty{}
	query := `SELECT id, nombre, created_at FROM especialidades ORDER BY nombre`
	if err := r.db.SelectContext(ctx, &specialties, query); err != nil {
		return nil, fmt.Errorf("failed to list specialties: %w", err)
	}
	return specialties, nil
}

func (r *specialtyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Specialty, error) {
	var specialty model.Specialty
	query := `SELECT id, nombre, created_at FROM especialidades WHERE id = $1`
	if err := r.db.GetContext(ctx, &specialty, query, id); err != nil {
		return nil, notFound(err, "specialty")
	}
	return &specialty, nil
}

func (r *specialtyRepository) Create(ctx context.Context, specialty *model.Specialty) error {
	if specialty.ID == uuid.Nil {
		specialty.ID = uuid.New()
	}
	specialty.Nombre = strings.TrimSpace(specialty.Nombre)
	specialty.CreatedAt = time.Now().UTC()

	query := `INSERT INTO especialidades (id, nombre, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, specialty.ID, specialty.Nombre, specialty.CreatedAt); err != nil {
		return conflictOnUnique(fmt.Errorf("failed to create specialty: %w", err), "specialty already exists")
	}
	return nil
}

// getOrCreateSpecialty matches nombre case-insensitively and inserts it when missing
func getOrCreateSpecialty(ctx context.Context, q sqlx.QueryerContext, nombre string) (*model.Specialty, error) {
	nombre = strings.TrimSpace(nombre)
	query := `
		WITH inserted AS (
			INSERT INTO especialidades (id, nombre, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT ((LOWER(nombre))) DO NOTHING
			RETURNING id, nombre, created_at
		)
		SELECT id, nombre, created_at FROM inserted
		UNION ALL
		SELECT id, nombre, created_at FROM especialidades WHERE LOWER(nombre) = LOWER($2)
		LIMIT 1
	`
	var specialty model.Specialty
	if err := sqlx.GetContext(ctx, q, &specialty, query, uuid.New(), nombre, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to get or create specialty %q: %w", nombre, err)
	}
	return &specialty, nil
}
