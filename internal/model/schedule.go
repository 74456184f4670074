package model

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is one weekly availability window (horario) of a specialist
type Schedule struct {
	ID             uuid.UUID `json:"id" db:"id"`
	EspecialistaID uuid.UUID `json:"especialista_id" db:"especialista_id"`
	EspecialidadID uuid.UUID `json:"especialidad_id" db:"especialidad_id"`
	DiaSemana      int       `json:"dia_semana" db:"dia_semana"`
	HoraInicio     string    `json:"hora_inicio" db:"hora_inicio"`
	HoraFin        string    `json:"hora_fin" db:"hora_fin"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type ScheduleEntryInput struct {
	EspecialidadID uuid.UUID `json:"especialidad_id" binding:"required"`
	DiaSemana      int       `json:"dia_semana" binding:"min=0,max=6"`
	HoraInicio     string    `json:"hora_inicio" binding:"required,hhmm"`
	HoraFin        string    `json:"hora_fin" binding:"required,hhmm"`
}

type SetScheduleRequest struct {
	Horarios []ScheduleEntryInput `json:"horarios" binding:"max=50,dive"`
}

// Slot is a bookable interval generated from a specialist's horarios
type Slot struct {
	EspecialistaID uuid.UUID `json:"especialista_id"`
	EspecialidadID uuid.UUID `json:"especialidad_id"`
	Inicio         time.Time `json:"inicio"`
	Fin            time.Time `json:"fin"`
}
