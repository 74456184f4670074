package user

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/security"
)

// SpecialtyCatalog is the part of the specialty service registration needs
type SpecialtyCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Specialty, error)
	Names(nombres []string) []string
	Invalidate()
}

type Service struct {
	repo            repository.UserRepository
	tokens          repository.TokenRepository
	specialties     SpecialtyCatalog
	hasher          security.PasswordHasher
	verificationTTL time.Duration
}

func NewService(repo repository.UserRepository, tokens repository.TokenRepository, specialties SpecialtyCatalog, hasher security.PasswordHasher, verificationTTL time.Duration) *Service {
	return &Service{
		repo:            repo,
		tokens:          tokens,
		specialties:     specialties,
		hasher:          hasher,
		verificationTTL: verificationTTL,
	}
}

// Register creates a patient or a specialist. Specialists wait for an admin
// to approve them before they can log in or be booked.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	if req.Role != model.RolePaciente && req.Role != model.RoleEspecialista {
		return nil, errors.Validation("role must be PACIENTE or ESPECIALISTA")
	}

	user, err := s.newUser(req.Email, req.Password, req.Nombre, req.Apellido, req.DNI, req.Edad)
	if err != nil {
		return nil, err
	}
	user.Role = req.Role

	var especialidadIDs []uuid.UUID
	switch req.Role {
	case model.RolePaciente:
		obraSocial := strings.TrimSpace(req.ObraSocial)
		if obraSocial == "" {
			return nil, errors.Validation("obra_social is required for patients")
		}
		user.ObraSocial = &obraSocial
		user.Aprobado = true
	case model.RoleEspecialista:
		especialidadIDs, err = s.existingSpecialties(ctx, req.EspecialidadIDs)
		if err != nil {
			return nil, err
		}
		for _, nombre := range s.specialties.Names(req.NuevasEspecialidades) {
			user.Especialidades = append(user.Especialidades, model.Specialty{Nombre: nombre})
		}
		if len(especialidadIDs) == 0 && len(user.Especialidades) == 0 {
			return nil, errors.Validation("specialists need at least one especialidad")
		}
	}

	token := uuid.NewString()
	event, err := model.NewOutboxEvent(model.EventUsuarioRegistrado, model.UserRegisteredPayload{
		UserID:            user.ID,
		Email:             user.Email,
		Nombre:            user.FullName(),
		Role:              user.Role,
		VerificationToken: token,
	})
	if err != nil {
		return nil, err
	}

	// the token must exist before the email carrying it can be sent
	if err := s.tokens.StoreVerificationToken(ctx, token, user.ID, s.verificationTTL); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, user, especialidadIDs, event); err != nil {
		if _, dropErr := s.tokens.ConsumeVerificationToken(ctx, token); dropErr != nil && !errors.IsCode(dropErr, errors.CodeNotFound) {
			log.Ctx(ctx).Warn().Err(dropErr).Msg("failed to drop verification token of rejected registration")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if len(user.Especialidades) > 0 {
		s.specialties.Invalidate()
	}

	log.Ctx(ctx).Info().
		Str("user_id", user.ID.String()).
		Str("role", string(user.Role)).
		Msg("user registered")

	return s.withSpecialties(ctx, user)
}

// CreateAdmin registers another administrator. Admins skip email verification.
func (s *Service) CreateAdmin(ctx context.Context, actor model.Actor, req model.CreateAdminRequest) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can create admins")
	}

	user, err := s.newUser(req.Email, req.Password, req.Nombre, req.Apellido, req.DNI, req.Edad)
	if err != nil {
		return nil, err
	}
	user.Role = model.RoleAdmin
	user.Aprobado = true
	user.EmailVerificado = true

	if err := s.repo.Create(ctx, user, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("user_id", user.ID.String()).
		Str("created_by", actor.ID.String()).
		Msg("admin created")
	return user, nil
}

func (s *Service) newUser(email, password, nombre, apellido, dni string, edad int) (*model.User, error) {
	user := &model.User{
		Base:     model.Base{ID: uuid.New()},
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Nombre:   strings.TrimSpace(nombre),
		Apellido: strings.TrimSpace(apellido),
		DNI:      strings.TrimSpace(dni),
		Edad:     edad,
	}
	switch {
	case user.Email == "":
		return nil, errors.Validation("email is required")
	case user.Nombre == "" || user.Apellido == "":
		return nil, errors.Validation("nombre and apellido are required")
	case user.DNI == "":
		return nil, errors.Validation("dni is required")
	case edad <= 0:
		return nil, errors.Validation("edad must be positive")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if stderrors.Is(err, security.ErrPasswordTooShort) {
			return nil, errors.Validationf("password must be at least %d characters", security.MinPasswordLen)
		}
		if stderrors.Is(err, security.ErrPasswordTooLong) {
			return nil, errors.Validationf("password must be at most %d bytes", security.MaxPasswordBytes)
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	return user, nil
}

// resolveSpecialties checks the chosen catalog ids and creates the new names.
// A specialist needs at least one specialty.
// existingSpecialties checks ids against the catalog and drops repeats
func (s *Service) existingSpecialties(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	out := []uuid.UUID{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if _, err := s.specialties.Get(ctx, id); err != nil {
			if errors.IsCode(err, errors.CodeNotFound) {
				return nil, errors.Validationf("especialidad %s does not exist", id)
			}
			return nil, err
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// SetApproval lets an admin enable or disable a specialist
func (s *Service) SetApproval(ctx context.Context, actor model.Actor, id uuid.UUID, aprobado bool) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can approve specialists")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleEspecialista {
		return nil, errors.Validation("only specialists need approval")
	}

	if err := s.repo.SetApproval(ctx, id, aprobado); err != nil {
		return nil, fmt.Errorf("failed to update approval: %w", err)
	}
	user.Aprobado = aprobado

	log.Ctx(ctx).Info().
		Str("user_id", id.String()).
		Bool("aprobado", aprobado).
		Str("admin_id", actor.ID.String()).
		Msg("specialist approval changed")
	return s.withSpecialties(ctx, user)
}

// Get returns a user to an admin or to the user themself
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.User, error) {
	if !actor.IsAdmin() && actor.ID != id {
		return nil, errors.Forbidden("you cannot view this user")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withSpecialties(ctx, user)
}

func (s *Service) Me(ctx context.Context, actor model.Actor) (*model.User, error) {
	return s.Get(ctx, actor, actor.ID)
}

func (s *Service) List(ctx context.Context, actor model.Actor, filter model.UserFilter) ([]*model.User, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, errors.Forbidden("only admins can list users")
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, errors.Validationf("unknown role %q", filter.Role)
	}
	filter.Normalize()

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	for _, u := range users {
		if _, err := s.withSpecialties(ctx, u); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// Specialists lists the approved specialists patients can book, optionally
// narrowed to one especialidad.
func (s *Service) Specialists(ctx context.Context, especialidadID *uuid.UUID) ([]*model.User, error) {
	users, err := s.repo.ListSpecialists(ctx, especialidadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list specialists: %w", err)
	}
	for _, u := range users {
		if _, err := s.withSpecialties(ctx, u); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (s *Service) withSpecialties(ctx context.Context, user *model.User) (*model.User, error) {
	if user.Role != model.RoleEspecialista {
		return user, nil
	}
	specialties, err := s.repo.SpecialtiesOf(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Especialidades = specialties
	return user, nil
}
