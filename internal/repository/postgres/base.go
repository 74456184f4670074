package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

const uniqueViolation = "23505"

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
	qb goqu.DialectWrapper
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db, qb: goqu.Dialect("postgres")}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notFound maps sql.ErrNoRows to a NOT_FOUND AppError and wraps anything else
func notFound(err error, resource string) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource, nil)
	}
	return fmt.Errorf("failed to get %s: %w", resource, err)
}

// conflictOnUnique maps a unique violation to a CONFLICT AppError
func conflictOnUnique(err error, message string) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.Conflict(message, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s literally anywhere in a LIKE/ILIKE operand
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// insertOutboxEvent writes evt using the caller's transaction so the event
// commits or rolls back together with the domain change.
func insertOutboxEvent(ctx context.Context, tx sqlx.ExecerContext, evt *model.OutboxEvent) error {
	if evt == nil {
		return nil
	}
	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		evt.ID,
		evt.EventType,
		[]byte(evt.Payload),
		evt.Status,
		evt.RetryCount,
		evt.CreatedAt,
		evt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// countAndSelect runs a goqu dataset twice: once for the total and once for the page
func (r *BaseRepository) countAndSelect(ctx context.Context, ds *goqu.SelectDataset, dest interface{}, page model.Pagination) (int, error) {
	countSQL, countArgs, err := ds.
		ClearSelect().ClearOrder().
		Select(goqu.COUNT(goqu.Star())).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}

	pageSQL, pageArgs, err := ds.
		Limit(uint(page.PageSize)).
		Offset(uint(page.Offset())).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build list query: %w", err)
	}

	if err := r.db.SelectContext(ctx, dest, pageSQL, pageArgs...); err != nil {
		return 0, fmt.Errorf("failed to list rows: %w", err)
	}
	return total, nil
}
