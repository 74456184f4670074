package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

// Config holds the booking rules of the clinic
type Config struct {
	SlotDuration time.Duration
	HorizonDays  int
	Location     *time.Location
	OpeningHours map[time.Weekday]Window
}

type Service struct {
	repo   repository.ScheduleRepository
	users  repository.UserRepository
	turnos repository.AppointmentRepository
	cfg    Config
	now    func() time.Time
}

func NewService(repo repository.ScheduleRepository, users repository.UserRepository, turnos repository.AppointmentRepository, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:   repo,
		users:  users,
		turnos: turnos,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) SlotDuration() time.Duration {
	return s.cfg.SlotDuration
}

func (s *Service) List(ctx context.Context, especialistaID uuid.UUID) ([]*model.Schedule, error) {
	schedules, err := s.repo.ListBySpecialist(ctx, especialistaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list horarios: %w", err)
	}
	return schedules, nil
}

// Set replaces the weekly horarios of a specialist. Only the specialist
// themself or an admin may do it.
func (s *Service) Set(ctx context.Context, actor model.Actor, especialistaID uuid.UUID, entries []model.ScheduleEntryInput) ([]*model.Schedule, error) {
	if !actor.IsAdmin() && actor.ID != especialistaID {
		return nil, errors.Forbidden("you can only edit your own horarios")
	}

	user, err := s.users.GetByID(ctx, especialistaID)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleEspecialista {
		return nil, errors.Validation("horarios can only be set for specialists")
	}

	schedules, err := s.validateEntries(ctx, especialistaID, entries)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Replace(ctx, especialistaID, schedules); err != nil {
		return nil, fmt.Errorf("failed to save horarios: %w", err)
	}
	return schedules, nil
}

type span struct {
	day        int
	start, end int
}

func (s *Service) validateEntries(ctx context.Context, especialistaID uuid.UUID, entries []model.ScheduleEntryInput) ([]*model.Schedule, error) {
	slot := int(s.cfg.SlotDuration / time.Minute)
	held := map[uuid.UUID]bool{}
	spans := make([]span, 0, len(entries))
	schedules := make([]*model.Schedule, 0, len(entries))

	for i, e := range entries {
		if e.DiaSemana < 0 || e.DiaSemana > 6 {
			return nil, errors.Validationf("horarios[%d]: dia_semana must be between 0 and 6", i)
		}
		start, err := ParseClock(e.HoraInicio)
		if err != nil {
			return nil, errors.Validationf("horarios[%d]: %v", i, err)
		}
		end, err := ParseClock(e.HoraFin)
		if err != nil {
			return nil, errors.Validationf("horarios[%d]: %v", i, err)
		}
		if end <= start {
			return nil, errors.Validationf("horarios[%d]: hora_fin must be after hora_inicio", i)
		}
		if (end-start)%slot != 0 {
			return nil, errors.Validationf("horarios[%d]: duration must be a multiple of %d minutes", i, slot)
		}

		window, open := s.cfg.OpeningHours[time.Weekday(e.DiaSemana)]
		if !open {
			return nil, errors.Validationf("horarios[%d]: the clinic is closed on that day", i)
		}
		if !window.Contains(start, end) {
			return nil, errors.Validationf("horarios[%d]: must be within %s-%s",
				i, FormatClock(window.Open), FormatClock(window.Close))
		}

		if _, checked := held[e.EspecialidadID]; !checked {
			ok, err := s.users.HasSpecialty(ctx, especialistaID, e.EspecialidadID)
			if err != nil {
				return nil, fmt.Errorf("failed to check specialty: %w", err)
			}
			held[e.EspecialidadID] = ok
		}
		if !held[e.EspecialidadID] {
			return nil, errors.Validationf("horarios[%d]: the specialist does not practice that specialty", i)
		}

		spans = append(spans, span{day: e.DiaSemana, start: start, end: end})
		schedules = append(schedules, &model.Schedule{
			EspecialistaID: especialistaID,
			EspecialidadID: e.EspecialidadID,
			DiaSemana:      e.DiaSemana,
			HoraInicio:     FormatClock(start),
			HoraFin:        FormatClock(end),
		})
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].day != spans[j].day {
			return spans[i].day < spans[j].day
		}
		return spans[i].start < spans[j].start
	})
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if prev.day == cur.day && cur.start < prev.end {
			return nil, errors.Validationf("horarios overlap on dia_semana %d at %s", cur.day, FormatClock(cur.start))
		}
	}
	return schedules, nil
}

// CheckBookable verifies that a turno of one slot starting at start fits in the
// specialist's horarios for the specialty and inside the booking horizon.
// It returns the end of the slot.
func (s *Service) CheckBookable(ctx context.Context, especialistaID, especialidadID uuid.UUID, start time.Time) (time.Time, error) {
	now := s.now()
	start = start.In(s.cfg.Location)

	if !start.After(now) {
		return time.Time{}, errors.Validation("fecha_inicio must be in the future")
	}
	if start.After(now.AddDate(0, 0, s.cfg.HorizonDays)) {
		return time.Time{}, errors.Validationf("turnos can be booked at most %d days ahead", s.cfg.HorizonDays)
	}
	if start.Second() != 0 || start.Nanosecond() != 0 {
		return time.Time{}, errors.Validation("fecha_inicio must fall on a slot boundary")
	}

	horarios, err := s.repo.ListBySpecialist(ctx, especialistaID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load horarios: %w", err)
	}

	slot := int(s.cfg.SlotDuration / time.Minute)
	minute := start.Hour()*60 + start.Minute()
	for _, h := range horarios {
		if h.EspecialidadID != especialidadID || h.DiaSemana != int(start.Weekday()) {
			continue
		}
		from, err1 := ParseClock(h.HoraInicio)
		to, err2 := ParseClock(h.HoraFin)
		if err1 != nil || err2 != nil {
			continue
		}
		if minute >= from && minute+slot <= to && (minute-from)%slot == 0 {
			return start.Add(s.cfg.SlotDuration), nil
		}
	}
	return time.Time{}, errors.Validation("the specialist does not attend that specialty at the requested time")
}

// AvailableSlots lists free slots for days starting at from. Slots in the past,
// beyond the horizon or overlapping an active turno are left out.
// A nil especialidadID includes every specialty.
func (s *Service) AvailableSlots(ctx context.Context, especialistaID uuid.UUID, especialidadID uuid.UUID, from time.Time, days int) ([]model.Slot, error) {
	now := s.now().In(s.cfg.Location)
	if from.IsZero() || from.Before(now) {
		from = now
	}
	if days <= 0 || days > s.cfg.HorizonDays {
		days = s.cfg.HorizonDays
	}
	from = from.In(s.cfg.Location)
	firstDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.cfg.Location)
	lastDay := firstDay.AddDate(0, 0, days)
	horizon := now.AddDate(0, 0, s.cfg.HorizonDays)

	horarios, err := s.repo.ListBySpecialist(ctx, especialistaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load horarios: %w", err)
	}
	busy, err := s.turnos.ListActiveBySpecialist(ctx, especialistaID, firstDay, lastDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked turnos: %w", err)
	}

	slots := []model.Slot{}
	for day := firstDay; day.Before(lastDay); day = day.AddDate(0, 0, 1) {
		for _, h := range horarios {
			if h.DiaSemana != int(day.Weekday()) {
				continue
			}
			if especialidadID != uuid.Nil && h.EspecialidadID != especialidadID {
				continue
			}
			open, err1 := ParseClock(h.HoraInicio)
			close, err2 := ParseClock(h.HoraFin)
			if err1 != nil || err2 != nil {
				continue
			}
			for m := open; m+int(s.cfg.SlotDuration/time.Minute) <= close; m += int(s.cfg.SlotDuration / time.Minute) {
				start := time.Date(day.Year(), day.Month(), day.Day(), m/60, m%60, 0, 0, s.cfg.Location)
				end := start.Add(s.cfg.SlotDuration)
				if !start.After(now) || start.After(horizon) || overlaps(busy, start, end) {
					continue
				}
				slots = append(slots, model.Slot{
					EspecialistaID: especialistaID,
					EspecialidadID: h.EspecialidadID,
					Inicio:         start,
					Fin:            end,
				})
			}
		}
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Inicio.Before(slots[j].Inicio) })
	return slots, nil
}

func overlaps(turnos []*model.Turno, start, end time.Time) bool {
	for _, t := range turnos {
		if t.FechaInicio.Before(end) && t.FechaFin.After(start) {
			return true
		}
	}
	return false
}
