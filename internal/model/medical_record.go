package model

import (
	"time"

	"github.com/google/uuid"
)

const MaxDynamicEntries = 3

// ClinicalRecord (historia clinica) written when a turno is finalized
type ClinicalRecord struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	TurnoID        uuid.UUID      `json:"turno_id" db:"turno_id"`
	PacienteID     uuid.UUID      `json:"paciente_id" db:"paciente_id"`
	EspecialistaID uuid.UUID      `json:"especialista_id" db:"especialista_id"`
	Altura         float64        `json:"altura" db:"altura"`
	Peso           float64        `json:"peso" db:"peso"`
	Temperatura    float64        `json:"temperatura" db:"temperatura"`
	Presion        string         `json:"presion" db:"presion"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	Datos          []DynamicEntry `json:"datos_dinamicos" db:"-"`
}

type DynamicEntry struct {
	Clave string `json:"clave" db:"clave" binding:"required,max=50"`
	Valor string `json:"valor" db:"valor" binding:"required,max=200"`
}

type ClinicalRecordInput struct {
	Altura      float64        `json:"altura" binding:"required,gt=0,lte=300"`
	Peso        float64        `json:"peso" binding:"required,gt=0,lte=500"`
	Temperatura float64        `json:"temperatura" binding:"required,gte=30,lte=45"`
	Presion     string         `json:"presion" binding:"required,max=20"`
	Datos       []DynamicEntry `json:"datos_dinamicos" binding:"max=3,dive"`
}

type ClinicalRecordFilter struct {
	PacienteID     *uuid.UUID
	EspecialistaID *uuid.UUID
}
