package model

import (
	"time"

	"github.com/google/uuid"
)

// TurnoStatus is the lifecycle status of an appointment
type TurnoStatus string

const (
	TurnoPendiente  TurnoStatus = "PENDIENTE"
	TurnoAceptado   TurnoStatus = "ACEPTADO"
	TurnoRechazado  TurnoStatus = "RECHAZADO"
	TurnoCancelado  TurnoStatus = "CANCELADO"
	TurnoFinalizado TurnoStatus = "FINALIZADO"
)

func (s TurnoStatus) Valid() bool {
	switch s {
	case TurnoPendiente, TurnoAceptado, TurnoRechazado, TurnoCancelado, TurnoFinalizado:
		return true
	}
	return false
}

// ActiveTurnoStatuses hold a slot in the specialist's agenda
var ActiveTurnoStatuses = []TurnoStatus{TurnoPendiente, TurnoAceptado}

// Action is something an actor can do with a turno right now
type Action string

const (
	ActionAccept      Action = "ACEPTAR"
	ActionReject      Action = "RECHAZAR"
	ActionCancel      Action = "CANCELAR"
	ActionFinalize    Action = "FINALIZAR"
	ActionRateSurvey  Action = "COMPLETAR_ENCUESTA"
	ActionViewSurvey  Action = "VER_ENCUESTA"
	ActionViewRecord  Action = "VER_HISTORIA_CLINICA"
	ActionViewComment Action = "VER_COMENTARIO"
)

type Turno struct {
	Base
	PacienteID     uuid.UUID   `json:"paciente_id" db:"paciente_id"`
	EspecialistaID uuid.UUID   `json:"especialista_id" db:"especialista_id"`
	EspecialidadID uuid.UUID   `json:"especialidad_id" db:"especialidad_id"`
	FechaInicio    time.Time   `json:"fecha_inicio" db:"fecha_inicio"`
	FechaFin       time.Time   `json:"fecha_fin" db:"fecha_fin"`
	Estado         TurnoStatus `json:"estado" db:"estado"`
	Motivo         string      `json:"motivo" db:"motivo"`
	Comentario     *string     `json:"comentario,omitempty" db:"comentario"`

	// read-only, filled by joins
	PacienteNombre     string `json:"paciente_nombre" db:"paciente_nombre"`
	EspecialistaNombre string `json:"especialista_nombre" db:"especialista_nombre"`
	EspecialidadNombre string `json:"especialidad_nombre" db:"especialidad_nombre"`
	TieneEncuesta      bool   `json:"tiene_encuesta" db:"tiene_encuesta"`
	TieneHistoria      bool   `json:"tiene_historia" db:"tiene_historia"`

	Acciones []Action `json:"acciones" db:"-"`
}

// TurnoHistory is one row of the status audit trail
type TurnoHistory struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	TurnoID        uuid.UUID    `json:"turno_id" db:"turno_id"`
	EstadoAnterior *TurnoStatus `json:"estado_anterior,omitempty" db:"estado_anterior"`
	EstadoNuevo    TurnoStatus  `json:"estado_nuevo" db:"estado_nuevo"`
	ActorID        uuid.UUID    `json:"actor_id" db:"actor_id"`
	Comentario     *string      `json:"comentario,omitempty" db:"comentario"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// StatusChange is a compare-and-set transition request for the repository.
// The update only applies while the stored estado still equals From.
type StatusChange struct {
	TurnoID    uuid.UUID
	From       TurnoStatus
	To         TurnoStatus
	ActorID    uuid.UUID
	Comentario *string
	Event      *OutboxEvent
	At         time.Time
}

type BookTurnoRequest struct {
	PacienteID     *uuid.UUID `json:"paciente_id"`
	EspecialistaID uuid.UUID  `json:"especialista_id" binding:"required"`
	EspecialidadID uuid.UUID  `json:"especialidad_id" binding:"required"`
	FechaInicio    time.Time  `json:"fecha_inicio" binding:"required"`
	Motivo         string     `json:"motivo" binding:"required,max=500"`
}

type CommentRequest struct {
	Comentario string `json:"comentario" binding:"required,max=500"`
}

type FinalizeTurnoRequest struct {
	Comentario string              `json:"comentario" binding:"required,max=1000"`
	Historia   ClinicalRecordInput `json:"historia_clinica" binding:"required"`
}

// FinalizeResult bundles the finalized turno with its clinical record
type FinalizeResult struct {
	Turno    *Turno          `json:"turno"`
	Historia *ClinicalRecord `json:"historia_clinica"`
	// Replayed is true when the turno was already finalized and nothing was written
	Replayed bool `json:"replayed"`
}

type TurnoFilter struct {
	PacienteID     *uuid.UUID
	EspecialistaID *uuid.UUID
	EspecialidadID *uuid.UUID
	Estado         TurnoStatus
	Search         string
	DateRange
	Pagination
}

// TurnoStatusChangedPayload is published on every transition
type TurnoStatusChangedPayload struct {
	TurnoID        uuid.UUID   `json:"turno_id"`
	PacienteID     uuid.UUID   `json:"paciente_id"`
	EspecialistaID uuid.UUID   `json:"especialista_id"`
	FechaInicio    time.Time   `json:"fecha_inicio"`
	EstadoAnterior TurnoStatus `json:"estado_anterior,omitempty"`
	EstadoNuevo    TurnoStatus `json:"estado_nuevo"`
	Comentario     string      `json:"comentario,omitempty"`
	ActorID        uuid.UUID   `json:"actor_id"`
}
