package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

const userColumns = `id, email, password_hash, nombre, apellido, edad, dni, obra_social,
	role, aprobado, email_verificado, created_at, updated_at`

var userSelect = []interface{}{
	"id", "email", "password_hash", "nombre", "apellido", "edad", "dni", "obra_social",
	"role", "aprobado", "email_verificado", "created_at", "updated_at",
}

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User, especialidadIDs []uuid.UUID, event *model.OutboxEvent) error {
	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO usuarios (
				id, email, password_hash, nombre, apellido, edad, dni, obra_social,
				role, aprobado, email_verificado, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		_, err := tx.ExecContext(ctx, query,
			user.ID,
			user.Email,
			user.PasswordHash,
			user.Nombre,
			user.Apellido,
			user.Edad,
			user.DNI,
			user.ObraSocial,
			user.Role,
			user.Aprobado,
			user.EmailVerificado,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Conflict("a user with that email or dni already exists", err)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		links := append([]uuid.UUID(nil), especialidadIDs...)
		for i := range user.Especialidades {
			if user.Especialidades[i].ID != uuid.Nil {
				continue
			}
			specialty, err := getOrCreateSpecialty(ctx, tx, user.Especialidades[i].Nombre)
			if err != nil {
				return err
			}
			user.Especialidades[i] = *specialty
			links = append(links, specialty.ID)
		}

		for _, especialidadID := range links {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO usuario_especialidades (usuario_id, especialidad_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				user.ID, especialidadID,
			)
			if err != nil {
				return fmt.Errorf("failed to link specialty: %w", err)
			}
		}

		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM usuarios WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM usuarios WHERE LOWER(email) = LOWER($1)`
	if err := r.db.GetContext(ctx, &user, query, strings.TrimSpace(email)); err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error) {
	filter.Normalize()

	var where []exp.Expression
	if filter.Role != "" {
		where = append(where, goqu.C("role").Eq(string(filter.Role)))
	}
	if filter.Aprobado != nil {
		where = append(where, goqu.C("aprobado").Eq(*filter.Aprobado))
	}
	if filter.Search != "" {
		pattern := containsPattern(filter.Search)
		where = append(where, goqu.Or(
			goqu.C("nombre").ILike(pattern),
			goqu.C("apellido").ILike(pattern),
			goqu.C("email").ILike(pattern),
			goqu.C("dni").ILike(pattern),
		))
	}

	ds := r.qb.From("usuarios").
		Select(userSelect...).
		Where(where...).
		Order(goqu.C("apellido").Asc(), goqu.C("nombre").Asc())

	users := []*model.User{}
	total, err := r.countAndSelect(ctx, ds, &users, filter.Pagination)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) ListSpecialists(ctx context.Context, especialidadID *uuid.UUID) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM usuarios u
		WHERE u.role = 'ESPECIALISTA' AND u.aprobado = TRUE
		AND ($1::uuid IS NULL OR EXISTS (
			SELECT 1 FROM usuario_especialidades ue
			WHERE ue.usuario_id = u.id AND ue.especialidad_id = $1::uuid
		))
		ORDER BY u.apellido, u.nombre
	`
	users := []*model.User{}
	if err := r.db.SelectContext(ctx, &users, query, especialidadID); err != nil {
		return nil, fmt.Errorf("failed to list specialists: %w", err)
	}
	return users, nil
}

func (r *userRepository) SetApproval(ctx context.Context, id uuid.UUID, aprobado bool) error {
	query := `UPDATE usuarios SET aprobado = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, aprobado, time.Now().UTC(), id)
}

func (r *userRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE usuarios SET email_verificado = TRUE, updated_at = $1 WHERE id = $2`
	return r.execOne(ctx, query, time.Now().UTC(), id)
}

func (r *userRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return errors.NotFound("user", nil)
	}
	return nil
}

func (r *userRepository) SpecialtiesOf(ctx context.Context, userID uuid.UUID) ([]model.Specialty, error) {
	query := `
		SELECT e.id, e.nombre, e.created_at
		FROM especialidades e
		JOIN usuario_especialidades ue ON ue.especialidad_id = e.id
		WHERE ue.usuario_id = $1
		ORDER BY e.nombre
	`
	specialties := []model.Specialty{}
	if err := r.db.SelectContext(ctx, &specialties, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user specialties: %w", err)
	}
	return specialties, nil
}

func (r *userRepository) HasSpecialty(ctx context.Context, userID, especialidadID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM usuario_especialidades WHERE usuario_id = $1 AND especialidad_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, especialidadID); err != nil {
		return false, fmt.Errorf("failed to check specialty: %w", err)
	}
	return exists, nil
}
