package specialty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
)

const catalogKey = "especialidades"

// Service serves the specialty catalog from an in-process cache
type Service struct {
	repo  repository.SpecialtyRepository
	cache *cache.Cache
}

func NewService(repo repository.SpecialtyRepository, ttl time.Duration) *Service {
	return &Service{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (s *Service) List(ctx context.Context) ([]*model.Specialty, error) {
	if cached, ok := s.cache.Get(catalogKey); ok {
		return cached.([]*model.Specialty), nil
	}

	specialties, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list specialties: %w", err)
	}
	s.cache.SetDefault(catalogKey, specialties)
	return specialties, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Specialty, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor model.Actor, nombre string) (*model.Specialty, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can create specialties")
	}
	nombre = normalize(nombre)
	if nombre == "" {
		return nil, errors.Validation("nombre is required")
	}

	specialty := &model.Specialty{ID: uuid.New(), Nombre: nombre}
	if err := s.repo.Create(ctx, specialty); err != nil {
		return nil, fmt.Errorf("failed to create specialty: %w", err)
	}
	s.cache.Delete(catalogKey)
	return specialty, nil
}

// Names normalizes the specialty names a specialist typed while registering,
// dropping blanks and case-insensitive repeats. The user repository creates the
// missing ones together with the user.
func (s *Service) Names(nombres []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, raw := range nombres {
		nombre := normalize(raw)
		key := strings.ToLower(nombre)
		if nombre == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, nombre)
	}
	return out
}

// Invalidate drops the cached catalog
func (s *Service) Invalidate() {
	s.cache.Delete(catalogKey)
}

// normalize collapses inner whitespace
func normalize(nombre string) string {
	return strings.Join(strings.Fields(nombre), " ")
}
