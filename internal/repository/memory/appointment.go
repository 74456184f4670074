package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

type appointmentRepo struct{ s *Store }

func isActive(t *model.Turno) bool {
	return t.Estado == model.TurnoPendiente || t.Estado == model.TurnoAceptado
}

// view copies t and fills the joined columns, like the SQL select does.
// Callers hold the lock.
func (s *Store) view(t *model.Turno) *model.Turno {
	cp := *t
	if p, ok := s.users[t.PacienteID]; ok {
		cp.PacienteNombre = p.FullName()
	}
	if e, ok := s.users[t.EspecialistaID]; ok {
		cp.EspecialistaNombre = e.FullName()
	}
	if sp, ok := s.specialties[t.EspecialidadID]; ok {
		cp.EspecialidadNombre = sp.Nombre
	}
	_, cp.TieneEncuesta = s.surveys[t.ID]
	for _, r := range s.records {
		if r.TurnoID == t.ID {
			cp.TieneHistoria = true
			break
		}
	}
	cp.Acciones = nil
	return &cp
}

func (r *appointmentRepo) Create(ctx context.Context, turno *model.Turno, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	for _, t := range r.s.turnos {
		if isActive(t) && t.EspecialistaID == turno.EspecialistaID && t.FechaInicio.Equal(turno.FechaInicio) {
			return errors.Conflict("the selected slot is no longer available", nil)
		}
	}

	now := time.Now().UTC()
	if turno.ID == uuid.Nil {
		turno.ID = uuid.New()
	}
	turno.Estado = model.TurnoPendiente
	turno.CreatedAt, turno.UpdatedAt = now, now
	cp := *turno
	r.s.turnos[turno.ID] = &cp
	r.s.history[turno.ID] = append(r.s.history[turno.ID], &model.TurnoHistory{
		ID:          uuid.New(),
		TurnoID:     turno.ID,
		EstadoNuevo: model.TurnoPendiente,
		ActorID:     turno.PacienteID,
		CreatedAt:   now,
	})
	if event != nil {
		r.s.outbox = append(r.s.outbox, event)
	}
	return nil
}

func (r *appointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Turno, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.turnos[id]
	if !ok {
		return nil, errors.NotFound("turno", nil)
	}
	return r.s.view(t), nil
}

func (r *appointmentRepo) List(ctx context.Context, filter model.TurnoFilter) ([]*model.Turno, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Turno
	for _, t := range r.s.turnos {
		if filter.PacienteID != nil && t.PacienteID != *filter.PacienteID {
			continue
		}
		if filter.EspecialistaID != nil && t.EspecialistaID != *filter.EspecialistaID {
			continue
		}
		if filter.EspecialidadID != nil && t.EspecialidadID != *filter.EspecialidadID {
			continue
		}
		if filter.Estado != "" && t.Estado != filter.Estado {
			continue
		}
		if !inRange(t.FechaInicio, filter.DateRange) {
			continue
		}
		v := r.s.view(t)
		if filter.Search != "" {
			text := v.Motivo + " " + v.PacienteNombre + " " + v.EspecialistaNombre + " " + v.EspecialidadNombre
			if v.Comentario != nil {
				text += " " + *v.Comentario
			}
			if !contains(text, filter.Search) {
				continue
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FechaInicio.After(out[j].FechaInicio) })
	return paginate(out, filter.Pagination), len(out), nil
}

func (r *appointmentRepo) ListActiveBySpecialist(ctx context.Context, especialistaID uuid.UUID, from, to time.Time) ([]*model.Turno, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Turno{}
	for _, t := range r.s.turnos {
		if t.EspecialistaID == especialistaID && isActive(t) && t.FechaInicio.Before(to) && t.FechaFin.After(from) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FechaInicio.Before(out[j].FechaInicio) })
	return out, nil
}

func (r *appointmentRepo) HasOverlap(ctx context.Context, especialistaID, pacienteID uuid.UUID, start, end time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.turnos {
		if !isActive(t) || (t.EspecialistaID != especialistaID && t.PacienteID != pacienteID) {
			continue
		}
		if t.FechaInicio.Before(end) && t.FechaFin.After(start) {
			return true, nil
		}
	}
	return false, nil
}

// applyChange runs the compare-and-set. Callers hold the lock.
func (s *Store) applyChange(change model.StatusChange) error {
	t, ok := s.turnos[change.TurnoID]
	if !ok || t.Estado != change.From {
		return errors.Conflict("turno was modified by another request, reload and try again", nil)
	}
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	t.Estado = change.To
	if change.Comentario != nil {
		c := *change.Comentario
		t.Comentario = &c
	}
	t.UpdatedAt = at
	from := change.From
	s.history[t.ID] = append(s.history[t.ID], &model.TurnoHistory{
		ID:             uuid.New(),
		TurnoID:        t.ID,
		EstadoAnterior: &from,
		EstadoNuevo:    change.To,
		ActorID:        change.ActorID,
		Comentario:     change.Comentario,
		CreatedAt:      at,
	})
	if change.Event != nil {
		s.outbox = append(s.outbox, change.Event)
	}
	return nil
}

func (r *appointmentRepo) UpdateStatus(ctx context.Context, change model.StatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	return r.s.applyChange(change)
}

func (r *appointmentRepo) Finalize(ctx context.Context, change model.StatusChange, record *model.ClinicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	for _, existing := range r.s.records {
		if existing.TurnoID == record.TurnoID {
			return errors.Conflict("turno already has a clinical record", nil)
		}
	}

	// check before mutating so a failure leaves nothing behind
	t, ok := r.s.turnos[change.TurnoID]
	if !ok || t.Estado != change.From {
		return errors.Conflict("turno was modified by another request, reload and try again", nil)
	}
	if err := r.s.applyChange(change); err != nil {
		return err
	}
	cp := *record
	cp.Datos = append([]model.DynamicEntry(nil), record.Datos...)
	r.s.records[record.ID] = &cp
	return nil
}

func (r *appointmentRepo) History(ctx context.Context, turnoID uuid.UUID) ([]*model.TurnoHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*model.TurnoHistory{}, r.s.history[turnoID]...), nil
}

// SetTurnoStatus forces a status, for arranging test fixtures
func (s *Store) SetTurnoStatus(id uuid.UUID, estado model.TurnoStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.turnos[id]; ok {
		t.Estado = estado
	}
}
