package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository/memory"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

// Monday 10 March 2025, 09:00 UTC
var monday9 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store        *memory.Store
	svc          *Service
	especialista *model.User
	cardiologia  uuid.UUID
	pediatria    uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	cardio := &model.Specialty{Nombre: "Cardiología"}
	pedia := &model.Specialty{Nombre: "Pediatría"}
	require.NoError(t, store.Specialties().Create(ctx, cardio))
	require.NoError(t, store.Specialties().Create(ctx, pedia))

	esp := &model.User{Email: "dra.perez@clinica.com", Nombre: "Laura", Apellido: "Pérez", DNI: "30111222",
		Role: model.RoleEspecialista, Aprobado: true, EmailVerificado: true}
	require.NoError(t, store.Users().Create(ctx, esp, []uuid.UUID{cardio.ID}, nil))

	hours, err := ParseOpeningHours(map[int]string{1: "08:00-19:00", 2: "08:00-19:00", 6: "08:00-14:00"})
	require.NoError(t, err)

	svc := NewService(store.Schedules(), store.Users(), store.Appointments(), Config{
		SlotDuration: 30 * time.Minute,
		HorizonDays:  15,
		Location:     time.UTC,
		OpeningHours: hours,
	})
	svc.SetClock(func() time.Time { return monday9 })

	return &fixture{store: store, svc: svc, especialista: esp, cardiologia: cardio.ID, pediatria: pedia.ID}
}

func (f *fixture) actor() model.Actor {
	return model.Actor{ID: f.especialista.ID, Role: model.RoleEspecialista}
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 510, m)
	assert.Equal(t, "08:30", FormatClock(m))

	for _, bad := range []string{"8:30", "24:00", "10:60", "aa:bb", "1030"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseOpeningHours(t *testing.T) {
	hours, err := ParseOpeningHours(map[int]string{6: "08:00 - 14:00"})
	require.NoError(t, err)
	assert.Equal(t, Window{Open: 480, Close: 840}, hours[time.Saturday])

	_, err = ParseOpeningHours(map[int]string{7: "08:00-14:00"})
	assert.Error(t, err)
	_, err = ParseOpeningHours(map[int]string{1: "14:00-08:00"})
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	saved, err := f.svc.Set(ctx, f.actor(), f.especialista.ID, []model.ScheduleEntryInput{
		{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "09:00", HoraFin: "12:00"},
		{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "14:00", HoraFin: "16:00"},
		{EspecialidadID: f.cardiologia, DiaSemana: 6, HoraInicio: "08:00", HoraFin: "14:00"},
	})
	require.NoError(t, err)
	assert.Len(t, saved, 3)

	listed, err := f.svc.List(ctx, f.especialista.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestSet_Validation(t *testing.T) {
	tests := []struct {
		name  string
		entry func(f *fixture) model.ScheduleEntryInput
		want  string
	}{
		{"closed sunday", func(f *fixture) model.ScheduleEntryInput {
			return model.ScheduleEntryInput{EspecialidadID: f.cardiologia, DiaSemana: 0, HoraInicio: "09:00", HoraFin: "10:00"}
		}, "closed"},
		{"saturday after 14", func(f *fixture) model.ScheduleEntryInput {
			return model.ScheduleEntryInput{EspecialidadID: f.cardiologia, DiaSemana: 6, HoraInicio: "12:00", HoraFin: "15:00"}
		}, "within 08:00-14:00"},
		{"end before start", func(f *fixture) model.ScheduleEntryInput {
			return model.ScheduleEntryInput{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "12:00", HoraFin: "10:00"}
		}, "after hora_inicio"},
		{"not a slot multiple", func(f *fixture) model.ScheduleEntryInput {
			return model.ScheduleEntryInput{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "09:00", HoraFin: "09:45"}
		}, "multiple of 30"},
		{"specialty not held", func(f *fixture) model.ScheduleEntryInput {
			return model.ScheduleEntryInput{EspecialidadID: f.pediatria, DiaSemana: 1, HoraInicio: "09:00", HoraFin: "10:00"}
		}, "does not practice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			_, err := f.svc.Set(context.Background(), f.actor(), f.especialista.ID, []model.ScheduleEntryInput{tt.entry(f)})
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSet_Overlap(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Set(context.Background(), f.actor(), f.especialista.ID, []model.ScheduleEntryInput{
		{EspecialidadID: f.cardiologia, DiaSemana: 2, HoraInicio: "09:00", HoraFin: "12:00"},
		{EspecialidadID: f.cardiologia, DiaSemana: 2, HoraInicio: "11:30", HoraFin: "13:00"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestSet_OnlyOwnerOrAdmin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	entries := []model.ScheduleEntryInput{{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "09:00", HoraFin: "10:00"}}

	other := model.Actor{ID: uuid.New(), Role: model.RoleEspecialista}
	_, err := f.svc.Set(ctx, other, f.especialista.ID, entries)
	assert.True(t, errors.IsCode(err, errors.CodeForbidden))

	admin := model.Actor{ID: uuid.New(), Role: model.RoleAdmin}
	_, err = f.svc.Set(ctx, admin, f.especialista.ID, entries)
	assert.NoError(t, err)
}

func TestCheckBookable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Set(ctx, f.actor(), f.especialista.ID, []model.ScheduleEntryInput{
		{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "09:00", HoraFin: "12:00"},
	})
	require.NoError(t, err)

	nextMonday := monday9.AddDate(0, 0, 7)

	end, err := f.svc.CheckBookable(ctx, f.especialista.ID, f.cardiologia, nextMonday.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, nextMonday.Add(time.Hour), end)

	cases := map[string]time.Time{
		"past":            monday9.Add(-time.Hour),
		"now":             monday9,
		"beyond horizon":  monday9.AddDate(0, 0, 21),
		"off boundary":    nextMonday.Add(10 * time.Minute),
		"outside horario": nextMonday.Add(3 * time.Hour),
		"wrong weekday":   nextMonday.AddDate(0, 0, 1),
	}
	for name, start := range cases {
		_, err := f.svc.CheckBookable(ctx, f.especialista.ID, f.cardiologia, start)
		assert.True(t, errors.IsCode(err, errors.CodeValidation), name)
	}

	_, err = f.svc.CheckBookable(ctx, f.especialista.ID, f.pediatria, nextMonday)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestAvailableSlots(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Set(ctx, f.actor(), f.especialista.ID, []model.ScheduleEntryInput{
		{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "08:00", HoraFin: "10:00"},
	})
	require.NoError(t, err)

	// 09:00 today is taken
	taken := &model.Turno{
		PacienteID:     uuid.New(),
		EspecialistaID: f.especialista.ID,
		EspecialidadID: f.cardiologia,
		FechaInicio:    monday9,
		FechaFin:       monday9.Add(30 * time.Minute),
	}
	require.NoError(t, f.store.Appointments().Create(ctx, taken, nil))

	slots, err := f.svc.AvailableSlots(ctx, f.especialista.ID, f.cardiologia, time.Time{}, 8)
	require.NoError(t, err)

	var starts []time.Time
	for _, s := range slots {
		starts = append(starts, s.Inicio)
		assert.Equal(t, s.Inicio.Add(30*time.Minute), s.Fin)
	}
	// today: 08:00, 08:30 are past, 09:00 is booked, 09:30 is free
	next := monday9.AddDate(0, 0, 7)
	assert.Equal(t, []time.Time{
		monday9.Add(30 * time.Minute),
		next.Add(-time.Hour),
		next.Add(-30 * time.Minute),
		next,
		next.Add(30 * time.Minute),
	}, starts)
}

func TestAvailableSlots_CancelledTurnoFreesSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Set(ctx, f.actor(), f.especialista.ID, []model.ScheduleEntryInput{
		{EspecialidadID: f.cardiologia, DiaSemana: 1, HoraInicio: "09:30", HoraFin: "10:00"},
	})
	require.NoError(t, err)

	turno := &model.Turno{
		PacienteID:     uuid.New(),
		EspecialistaID: f.especialista.ID,
		EspecialidadID: f.cardiologia,
		FechaInicio:    monday9.Add(30 * time.Minute),
		FechaFin:       monday9.Add(time.Hour),
	}
	require.NoError(t, f.store.Appointments().Create(ctx, turno, nil))

	slots, err := f.svc.AvailableSlots(ctx, f.especialista.ID, uuid.Nil, monday9, 1)
	require.NoError(t, err)
	assert.Empty(t, slots)

	f.store.SetTurnoStatus(turno.ID, model.TurnoCancelado)
	slots, err = f.svc.AvailableSlots(ctx, f.especialista.ID, uuid.Nil, monday9, 1)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}
