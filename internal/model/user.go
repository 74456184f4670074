package model

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RolePaciente     Role = "PACIENTE"
	RoleEspecialista Role = "ESPECIALISTA"
	RoleAdmin        Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RolePaciente, RoleEspecialista, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	Base
	Email           string      `json:"email" db:"email"`
	PasswordHash    string      `json:"-" db:"password_hash"`
	Nombre          string      `json:"nombre" db:"nombre"`
	Apellido        string      `json:"apellido" db:"apellido"`
	Edad            int         `json:"edad" db:"edad"`
	DNI             string      `json:"dni" db:"dni"`
	ObraSocial      *string     `json:"obra_social,omitempty" db:"obra_social"`
	Role            Role        `json:"role" db:"role"`
	Aprobado        bool        `json:"aprobado" db:"aprobado"`
	EmailVerificado bool        `json:"email_verificado" db:"email_verificado"`
	Especialidades  []Specialty `json:"especialidades,omitempty" db:"-"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.Nombre + " " + u.Apellido)
}

// CanBeBooked reports whether the user is an approved specialist
func (u *User) CanBeBooked() bool {
	return u.Role == RoleEspecialista && u.Aprobado
}

type RegisterRequest struct {
	Email                string      `json:"email" binding:"required,email,max=255"`
	Password             string      `json:"password" binding:"required,min=8,max=72"`
	Nombre               string      `json:"nombre" binding:"required,max=100"`
	Apellido             string      `json:"apellido" binding:"required,max=100"`
	Edad                 int         `json:"edad" binding:"required,min=1,max=120"`
	DNI                  string      `json:"dni" binding:"required,min=6,max=12"`
	ObraSocial           string      `json:"obra_social" binding:"max=100"`
	Role                 Role        `json:"role" binding:"required,oneof=PACIENTE ESPECIALISTA"`
	EspecialidadIDs      []uuid.UUID `json:"especialidad_ids"`
	NuevasEspecialidades []string    `json:"nuevas_especialidades" binding:"dive,required,max=100"`
}

type CreateAdminRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Nombre   string `json:"nombre" binding:"required,max=100"`
	Apellido string `json:"apellido" binding:"required,max=100"`
	Edad     int    `json:"edad" binding:"required,min=18,max=120"`
	DNI      string `json:"dni" binding:"required,min=6,max=12"`
}

type ApprovalRequest struct {
	Aprobado *bool `json:"aprobado" binding:"required"`
}

type UserFilter struct {
	Role     Role
	Aprobado *bool
	Search   string
	Pagination
}
