package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

type medicalRecordRepo struct{ s *Store }

func copyRecord(r *model.ClinicalRecord) *model.ClinicalRecord {
	cp := *r
	cp.Datos = append([]model.DynamicEntry{}, r.Datos...)
	return &cp
}

func (r *medicalRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ClinicalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, errors.NotFound("clinical record", nil)
	}
	return copyRecord(rec), nil
}

func (r *medicalRecordRepo) GetByTurno(ctx context.Context, turnoID uuid.UUID) (*model.ClinicalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.records {
		if rec.TurnoID == turnoID {
			return copyRecord(rec), nil
		}
	}
	return nil, errors.NotFound("clinical record", nil)
}

func (r *medicalRecordRepo) List(ctx context.Context, filter model.ClinicalRecordFilter) ([]*model.ClinicalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.ClinicalRecord{}
	for _, rec := range r.s.records {
		if filter.PacienteID != nil && rec.PacienteID != *filter.PacienteID {
			continue
		}
		if filter.EspecialistaID != nil && rec.EspecialistaID != *filter.EspecialistaID {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type surveyRepo struct{ s *Store }

func (r *surveyRepo) Create(ctx context.Context, survey *model.Survey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.surveys[survey.TurnoID]; exists {
		return errors.Conflict("a survey was already submitted for this turno", nil)
	}
	if survey.ID == uuid.Nil {
		survey.ID = uuid.New()
	}
	survey.CreatedAt = time.Now().UTC()
	cp := *survey
	r.s.surveys[survey.TurnoID] = &cp
	return nil
}

func (r *surveyRepo) GetByTurno(ctx context.Context, turnoID uuid.UUID) (*model.Survey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sv, ok := r.s.surveys[turnoID]
	if !ok {
		return nil, errors.NotFound("survey", nil)
	}
	cp := *sv
	return &cp, nil
}

func (r *surveyRepo) List(ctx context.Context, filter model.SurveyFilter) ([]*model.Survey, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Survey
	for _, sv := range r.s.surveys {
		if filter.EspecialistaID != nil {
			t, ok := r.s.turnos[sv.TurnoID]
			if !ok || t.EspecialistaID != *filter.EspecialistaID {
				continue
			}
		}
		if !inRange(sv.CreatedAt, filter.DateRange) {
			continue
		}
		cp := *sv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Pagination), len(out), nil
}

type loginLogRepo struct{ s *Store }

func (r *loginLogRepo) Create(ctx context.Context, usuarioID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry := &model.LoginLog{ID: uuid.New(), UsuarioID: usuarioID, CreatedAt: time.Now().UTC()}
	if u, ok := r.s.users[usuarioID]; ok {
		entry.Email, entry.Nombre, entry.Apellido, entry.Role = u.Email, u.Nombre, u.Apellido, u.Role
	}
	r.s.loginLogs = append(r.s.loginLogs, entry)
	return nil
}

func (r *loginLogRepo) List(ctx context.Context, rng model.DateRange, page model.Pagination) ([]*model.LoginLog, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.LoginLog
	for i := len(r.s.loginLogs) - 1; i >= 0; i-- {
		if inRange(r.s.loginLogs[i].CreatedAt, rng) {
			cp := *r.s.loginLogs[i]
			out = append(out, &cp)
		}
	}
	return paginate(out, page), len(out), nil
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outbox = append(r.s.outbox, event)
	return nil
}

func (r *outboxRepo) ProcessPending(ctx context.Context, limit int, fn func(*model.OutboxEvent) model.OutboxResult) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, e := range r.s.outbox {
		if n == limit {
			break
		}
		due := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusRetry && (e.RetryAt == nil || !e.RetryAt.After(now)))
		if !due {
			continue
		}
		res := fn(e)
		e.Status = res.Status
		e.ErrorMessage = res.ErrorMessage
		e.RetryAt = res.RetryAt
		e.UpdatedAt = now
		if res.Status == model.OutboxStatusProcessed {
			e.ProcessedAt = &now
		} else {
			e.RetryCount++
		}
		n++
	}
	return n, nil
}

func (r *outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.outbox[:0]
	var deleted int64
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return deleted, nil
}
