package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

const (
	verificationPrefix = "clinica:verify:"
	revokedPrefix      = "clinica:revoked:"
)

type tokenRepository struct {
	client  *redis.Client
	metrics *metrics.Metrics
}

// NewTokenRepository stores verification tokens and revoked JWT ids as
// expiring keys so redis does the cleanup.
func NewTokenRepository(client *redis.Client, m *metrics.Metrics) repository.TokenRepository {
	return &tokenRepository{client: client, metrics: m}
}

func (r *tokenRepository) StoreVerificationToken(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	start := time.Now()
	err := r.client.Set(ctx, verificationPrefix+token, userID.String(), ttl).Err()
	r.observe("verify_store", start, err)
	if err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}
	return nil
}

func (r *tokenRepository) ConsumeVerificationToken(ctx context.Context, token string) (uuid.UUID, error) {
	start := time.Now()
	value, err := r.client.GetDel(ctx, verificationPrefix+token).Result()
	if err == redis.Nil {
		r.observe("verify_consume", start, nil)
		return uuid.Nil, errors.NotFound("verification token", nil)
	}
	r.observe("verify_consume", start, err)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read verification token: %w", err)
	}

	userID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt verification token value: %w", err)
	}
	return userID, nil
}

// RevokeToken reports false when tokenID had already been revoked
func (r *tokenRepository) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	// already expired tokens are rejected by the JWT check anyway
	if ttl <= 0 {
		return true, nil
	}
	start := time.Now()
	first, err := r.client.SetNX(ctx, revokedPrefix+tokenID, 1, ttl).Result()
	r.observe("revoke", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return first, nil
}

func (r *tokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	start := time.Now()
	n, err := r.client.Exists(ctx, revokedPrefix+tokenID).Result()
	r.observe("revoked_check", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

func (r *tokenRepository) observe(operation string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.RedisOperations.WithLabelValues(operation, status).Inc()
	r.metrics.RedisLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
