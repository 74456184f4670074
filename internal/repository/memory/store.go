// Package memory keeps every repository in process maps. It backs the service
// tests and mirrors the constraints the Postgres schema enforces.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

type Store struct {
	mu sync.Mutex

	users        map[uuid.UUID]*model.User
	userSpecs    map[uuid.UUID]map[uuid.UUID]bool
	specialties  map[uuid.UUID]*model.Specialty
	schedules    map[uuid.UUID][]*model.Schedule
	turnos       map[uuid.UUID]*model.Turno
	history      map[uuid.UUID][]*model.TurnoHistory
	records      map[uuid.UUID]*model.ClinicalRecord
	surveys      map[uuid.UUID]*model.Survey
	loginLogs    []*model.LoginLog
	outbox       []*model.OutboxEvent
	failNextSave error
}

func NewStore() *Store {
	return &Store{
		users:       map[uuid.UUID]*model.User{},
		userSpecs:   map[uuid.UUID]map[uuid.UUID]bool{},
		specialties: map[uuid.UUID]*model.Specialty{},
		schedules:   map[uuid.UUID][]*model.Schedule{},
		turnos:      map[uuid.UUID]*model.Turno{},
		history:     map[uuid.UUID][]*model.TurnoHistory{},
		records:     map[uuid.UUID]*model.ClinicalRecord{},
		surveys:     map[uuid.UUID]*model.Survey{},
	}
}

// FailNextWrite makes the next transactional write return err without applying anything
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextSave = err
}

func (s *Store) takeFailure() error {
	err := s.failNextSave
	s.failNextSave = nil
	return err
}

// Outbox returns a copy of the events written so far
func (s *Store) Outbox() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.OutboxEvent(nil), s.outbox...)
}

func (s *Store) LoginLogs() []*model.LoginLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.LoginLog(nil), s.loginLogs...)
}

// Records returns every stored clinical record
func (s *Store) Records() []*model.ClinicalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ClinicalRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

func (s *Store) Specialties() repository.SpecialtyRepository { return &specialtyRepo{s} }

func (s *Store) Schedules() repository.ScheduleRepository { return &scheduleRepo{s} }

func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepo{s} }

func (s *Store) MedicalRecords() repository.MedicalRecordRepository { return &medicalRecordRepo{s} }

func (s *Store) Surveys() repository.SurveyRepository { return &surveyRepo{s} }

func (s *Store) LoginLogRepo() repository.LoginLogRepository { return &loginLogRepo{s} }

func (s *Store) OutboxRepo() repository.OutboxRepository { return &outboxRepo{s} }

func inRange(t time.Time, rng model.DateRange) bool {
	if rng.Desde != nil && t.Before(*rng.Desde) {
		return false
	}
	if rng.Hasta != nil && !t.Before(*rng.Hasta) {
		return false
	}
	return true
}

func paginate[T any](items []T, page model.Pagination) []T {
	page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// users

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *model.User, especialidadIDs []uuid.UUID, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) || u.DNI == user.DNI {
			return errors.Conflict("a user with that email or dni already exists", nil)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	links := map[uuid.UUID]bool{}
	for _, id := range especialidadIDs {
		links[id] = true
	}
	for i, sp := range user.Especialidades {
		if sp.ID == uuid.Nil {
			user.Especialidades[i] = *r.s.specialtyNamed(sp.Nombre, now)
		}
		links[user.Especialidades[i].ID] = true
	}

	cp := *user
	cp.Especialidades = nil
	r.s.users[user.ID] = &cp
	r.s.userSpecs[user.ID] = links
	if event != nil {
		r.s.outbox = append(r.s.outbox, event)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errors.NotFound("user", nil)
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errors.NotFound("user", nil)
}

func (r *userRepo) List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.User
	for _, u := range r.s.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Aprobado != nil && u.Aprobado != *filter.Aprobado {
			continue
		}
		if filter.Search != "" && !contains(u.Nombre+" "+u.Apellido+" "+u.Email+" "+u.DNI, filter.Search) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Apellido != out[j].Apellido {
			return out[i].Apellido < out[j].Apellido
		}
		return out[i].Nombre < out[j].Nombre
	})
	return paginate(out, filter.Pagination), len(out), nil
}

func (r *userRepo) ListSpecialists(ctx context.Context, especialidadID *uuid.UUID) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.User{}
	for _, u := range r.s.users {
		if !u.CanBeBooked() {
			continue
		}
		if especialidadID != nil && !r.s.userSpecs[u.ID][*especialidadID] {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Apellido < out[j].Apellido })
	return out, nil
}

func (r *userRepo) SetApproval(ctx context.Context, id uuid.UUID, aprobado bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return errors.NotFound("user", nil)
	}
	u.Aprobado = aprobado
	return nil
}

func (r *userRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return errors.NotFound("user", nil)
	}
	u.EmailVerificado = true
	return nil
}

func (r *userRepo) SpecialtiesOf(ctx context.Context, userID uuid.UUID) ([]model.Specialty, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Specialty{}
	for id := range r.s.userSpecs[userID] {
		if sp, ok := r.s.specialties[id]; ok {
			out = append(out, *sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nombre < out[j].Nombre })
	return out, nil
}

func (r *userRepo) HasSpecialty(ctx context.Context, userID, especialidadID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.userSpecs[userID][especialidadID], nil
}

// specialties

type specialtyRepo struct{ s *Store }

func (r *specialtyRepo) List(ctx context.Context) ([]*model.Specialty, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Specialty{}
	for _, sp := range r.s.specialties {
		cp := *sp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nombre < out[j].Nombre })
	return out, nil
}

func (r *specialtyRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Specialty, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sp, ok := r.s.specialties[id]
	if !ok {
		return nil, errors.NotFound("specialty", nil)
	}
	cp := *sp
	return &cp, nil
}

func (r *specialtyRepo) Create(ctx context.Context, specialty *model.Specialty) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sp := range r.s.specialties {
		if strings.EqualFold(sp.Nombre, specialty.Nombre) {
			return errors.Conflict("specialty already exists", nil)
		}
	}
	if specialty.ID == uuid.Nil {
		specialty.ID = uuid.New()
	}
	specialty.CreatedAt = time.Now().UTC()
	cp := *specialty
	r.s.specialties[specialty.ID] = &cp
	return nil
}

// specialtyNamed finds nombre case-insensitively or adds it. Callers hold mu.
func (s *Store) specialtyNamed(nombre string, now time.Time) *model.Specialty {
	nombre = strings.TrimSpace(nombre)
	for _, sp := range s.specialties {
		if strings.EqualFold(sp.Nombre, nombre) {
			return sp
		}
	}
	sp := &model.Specialty{ID: uuid.New(), Nombre: nombre, CreatedAt: now}
	s.specialties[sp.ID] = sp
	return sp
}

// schedules

type scheduleRepo struct{ s *Store }

func (r *scheduleRepo) ListBySpecialist(ctx context.Context, especialistaID uuid.UUID) ([]*model.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Schedule{}
	for _, h := range r.s.schedules[especialistaID] {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (r *scheduleRepo) Replace(ctx context.Context, especialistaID uuid.UUID, entries []*model.Schedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.takeFailure(); err != nil {
		return err
	}
	stored := make([]*model.Schedule, 0, len(entries))
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.EspecialistaID = especialistaID
		e.CreatedAt = time.Now().UTC()
		cp := *e
		stored = append(stored, &cp)
	}
	r.s.schedules[especialistaID] = stored
	return nil
}
