package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/auth"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/security"
)

const tokenType = "Bearer"

type Service struct {
	users               repository.UserRepository
	logins              repository.LoginLogRepository
	tokens              repository.TokenRepository
	jwtSvc              auth.JWTService
	hasher              security.PasswordHasher
	requireVerification bool
	now                 func() time.Time
}

func NewService(users repository.UserRepository, logins repository.LoginLogRepository, tokens repository.TokenRepository,
	jwtSvc auth.JWTService, hasher security.PasswordHasher, requireVerification bool) *Service {
	return &Service{
		users:               users,
		logins:              logins,
		tokens:              tokens,
		jwtSvc:              jwtSvc,
		hasher:              hasher,
		requireVerification: requireVerification,
		now:                 time.Now,
	}
}

// Login checks the password first, then whether the account may enter.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return nil, errors.InvalidCredentials()
		}
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		log.Ctx(ctx).Info().Str("user_id", user.ID.String()).Msg("login rejected: wrong password")
		return nil, errors.InvalidCredentials()
	}

	if err := s.checkAccess(user); err != nil {
		return nil, err
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	// the login still succeeds when the log write fails
	if err := s.logins.Create(ctx, user.ID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login")
	}
	log.Ctx(ctx).Info().Str("user_id", user.ID.String()).Str("role", string(user.Role)).Msg("user logged in")
	return resp, nil
}

func (s *Service) checkAccess(user *model.User) error {
	if s.requireVerification && user.Role != model.RoleAdmin && !user.EmailVerificado {
		return errors.EmailNotConfirmed()
	}
	if user.Role == model.RoleEspecialista && !user.Aprobado {
		return errors.SpecialistNotApproved()
	}
	return nil
}

func (s *Service) issue(user *model.User) (*model.TokenResponse, error) {
	pair, err := s.jwtSvc.GenerateTokenPair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	return &model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    pair.AccessExpiresAt,
		User:         user,
	}, nil
}

// Refresh rotates the refresh token: the presented one is revoked and a new
// pair is issued, provided the account may still log in.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return nil, errors.Unauthorized("account no longer exists", nil)
		}
		return nil, err
	}
	if err := s.checkAccess(user); err != nil {
		return nil, err
	}

	// a concurrent refresh with the same token may have passed the check above
	first, err := s.revoke(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, errors.Unauthorized("token has been revoked", nil)
	}
	return s.issue(user)
}

// Authenticate validates an access token and rejects revoked ones
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.jwtSvc.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Logout revokes the access token and, when given, the refresh token of the
// same session.
func (s *Service) Logout(ctx context.Context, access *auth.Claims, refreshToken string) error {
	if _, err := s.revoke(ctx, access); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}

	refresh, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		// nothing left to revoke
		return nil
	}
	if refresh.UserID != access.UserID {
		return errors.Forbidden("refresh token belongs to another user")
	}
	_, err = s.revoke(ctx, refresh)
	return err
}

// VerifyEmail consumes a registration token
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.ConsumeVerificationToken(ctx, token)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return errors.BadRequest("verification token is invalid or expired", nil)
		}
		return err
	}
	if err := s.users.MarkEmailVerified(ctx, userID); err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	log.Ctx(ctx).Info().Str("user_id", userID.String()).Msg("email verified")
	return nil
}

func (s *Service) checkRevoked(ctx context.Context, claims *auth.Claims) error {
	revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return errors.Unauthorized("token has been revoked", nil)
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, claims *auth.Claims) (bool, error) {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	return s.tokens.RevokeToken(ctx, claims.ID, ttl)
}

func tokenError(err error) error {
	if stderrors.Is(err, auth.ErrExpiredToken) {
		return errors.Unauthorized("token expired", err)
	}
	return errors.Unauthorized("invalid token", err)
}
