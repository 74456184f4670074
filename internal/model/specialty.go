package model

import (
	"time"

	"github.com/google/uuid"
)

type Specialty struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Nombre    string    `json:"nombre" db:"nombre"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type CreateSpecialtyRequest struct {
	Nombre string `json:"nombre" binding:"required,max=100"`
}
