package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
)

type loginLogRepository struct {
	BaseRepository
}

func NewLoginLogRepository(base BaseRepository) repository.LoginLogRepository {
	return &loginLogRepository{base}
}

func (r *loginLogRepository) Create(ctx context.Context, usuarioID uuid.UUID) error {
	query := `INSERT INTO log_ingresos (id, usuario_id, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, uuid.New(), usuarioID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

func (r *loginLogRepository) List(ctx context.Context, rng model.DateRange, page model.Pagination) ([]*model.LoginLog, int, error) {
	page.Normalize()

	var where []exp.Expression
	if rng.Desde != nil {
		where = append(where, goqu.I("l.created_at").Gte(*rng.Desde))
	}
	if rng.Hasta != nil {
		where = append(where, goqu.I("l.created_at").Lt(*rng.Hasta))
	}

	ds := r.qb.From(goqu.T("log_ingresos").As("l")).
		Select(
			goqu.I("l.id"),
			goqu.I("l.usuario_id"),
			goqu.I("u.email"),
			goqu.I("u.nombre"),
			goqu.I("u.apellido"),
			goqu.I("u.role"),
			goqu.I("l.created_at"),
		).
		InnerJoin(goqu.T("usuarios").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.usuario_id")))).
		Where(where...).
		Order(goqu.I("l.created_at").Desc())

	logs := []*model.LoginLog{}
	total, err := r.countAndSelect(ctx, ds, &logs, page)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
