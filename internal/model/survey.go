package model

import (
	"time"

	"github.com/google/uuid"
)

const MaxSurveyComment = 500

// Survey (encuesta de atencion) left by a patient after a finalized turno
type Survey struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TurnoID      uuid.UUID `json:"turno_id" db:"turno_id"`
	PacienteID   uuid.UUID `json:"paciente_id" db:"paciente_id"`
	Calificacion int       `json:"calificacion" db:"calificacion"`
	Comentario   string    `json:"comentario" db:"comentario"`
	Recomendaria bool      `json:"recomendaria" db:"recomendaria"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type SubmitSurveyRequest struct {
	Calificacion int    `json:"calificacion" binding:"required,min=1,max=5"`
	Comentario   string `json:"comentario" binding:"max=500"`
	Recomendaria *bool  `json:"recomendaria" binding:"required"`
}

type SurveyFilter struct {
	EspecialistaID *uuid.UUID
	DateRange
	Pagination
}
