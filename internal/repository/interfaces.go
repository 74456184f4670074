package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaonline/turnos-api/internal/model"
)

// All repository interfaces in one file
type (
	UserRepository interface {
		// Create stores the user, its specialty links and the registration event in one
		// transaction. Entries of user.Especialidades without an ID are matched by name
		// case-insensitively, created when missing and linked too.
		Create(ctx context.Context, user *model.User, especialidadIDs []uuid.UUID, event *model.OutboxEvent) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error)
		ListSpecialists(ctx context.Context, especialidadID *uuid.UUID) ([]*model.User, error)
		SetApproval(ctx context.Context, id uuid.UUID, aprobado bool) error
		MarkEmailVerified(ctx context.Context, id uuid.UUID) error
		SpecialtiesOf(ctx context.Context, userID uuid.UUID) ([]model.Specialty, error)
		HasSpecialty(ctx context.Context, userID, especialidadID uuid.UUID) (bool, error)
	}

	SpecialtyRepository interface {
		List(ctx context.Context) ([]*model.Specialty, error)
		GetByID(ctx context.Context, id uuid.UUID) (*model.Specialty, error)
		Create(ctx context.Context, specialty *model.Specialty) error
	}

	ScheduleRepository interface {
		ListBySpecialist(ctx context.Context, especialistaID uuid.UUID) ([]*model.Schedule, error)
		// Replace swaps the specialist's whole weekly agenda atomically
		Replace(ctx context.Context, especialistaID uuid.UUID, entries []*model.Schedule) error
	}

	AppointmentRepository interface {
		// Create inserts a PENDIENTE turno plus its first history row and event
		Create(ctx context.Context, turno *model.Turno, event *model.OutboxEvent) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Turno, error)
		List(ctx context.Context, filter model.TurnoFilter) ([]*model.Turno, int, error)
		ListActiveBySpecialist(ctx context.Context, especialistaID uuid.UUID, from, to time.Time) ([]*model.Turno, error)
		// HasOverlap reports an active turno of the specialist or the patient intersecting [start, end)
		HasOverlap(ctx context.Context, especialistaID, pacienteID uuid.UUID, start, end time.Time) (bool, error)
		// UpdateStatus applies a compare-and-set transition. A stale From yields CONFLICT.
		UpdateStatus(ctx context.Context, change model.StatusChange) error
		// Finalize applies the ACEPTADO to FINALIZADO change and inserts the clinical record in one transaction
		Finalize(ctx context.Context, change model.StatusChange, record *model.ClinicalRecord) error
		History(ctx context.Context, turnoID uuid.UUID) ([]*model.TurnoHistory, error)
	}

	MedicalRecordRepository interface {
		GetByID(ctx context.Context, id uuid.UUID) (*model.ClinicalRecord, error)
		GetByTurno(ctx context.Context, turnoID uuid.UUID) (*model.ClinicalRecord, error)
		List(ctx context.Context, filter model.ClinicalRecordFilter) ([]*model.ClinicalRecord, error)
	}

	SurveyRepository interface {
		Create(ctx context.Context, survey *model.Survey) error
		GetByTurno(ctx context.Context, turnoID uuid.UUID) (*model.Survey, error)
		List(ctx context.Context, filter model.SurveyFilter) ([]*model.Survey, int, error)
	}

	LoginLogRepository interface {
		Create(ctx context.Context, usuarioID uuid.UUID) error
		List(ctx context.Context, filter model.DateRange, page model.Pagination) ([]*model.LoginLog, int, error)
	}

	ReportRepository interface {
		TurnosPorEspecialidad(ctx context.Context, rng model.DateRange) ([]model.LabelCount, error)
		TurnosPorDia(ctx context.Context, rng model.DateRange) ([]model.DailyCount, error)
		TurnosPorEspecialista(ctx context.Context, rng model.DateRange, estado model.TurnoStatus) ([]model.LabelCount, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ProcessPending locks up to limit due events with SKIP LOCKED, hands each to
		// fn and stores the returned result, all inside one transaction.
		ProcessPending(ctx context.Context, limit int, fn func(*model.OutboxEvent) model.OutboxResult) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// TokenRepository keeps short lived secrets that expire on their own
	TokenRepository interface {
		StoreVerificationToken(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
		// ConsumeVerificationToken returns the owner and deletes the token; unknown or expired tokens are NOT_FOUND
		ConsumeVerificationToken(ctx context.Context, token string) (uuid.UUID, error)
		// RevokeToken is atomic: of concurrent calls for one tokenID only the first reports true
		RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}
)
