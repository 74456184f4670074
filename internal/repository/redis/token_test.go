package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaonline/turnos-api/internal/repository"
	"github.com/clinicaonline/turnos-api/pkg/errors"
	"github.com/clinicaonline/turnos-api/pkg/metrics"
)

func newTestRepo(t *testing.T) (repository.TokenRepository, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	return NewTokenRepository(client, m), mr, m
}

func TestVerificationToken_IsSingleUse(t *testing.T) {
	repo, _, m := newTestRepo(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.StoreVerificationToken(ctx, "abc", userID, time.Hour))

	got, err := repo.ConsumeVerificationToken(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = repo.ConsumeVerificationToken(ctx, "abc")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RedisOperations.WithLabelValues("verify_consume", "success")))
}

func TestVerificationToken_Expires(t *testing.T) {
	repo, mr, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.StoreVerificationToken(ctx, "abc", uuid.New(), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := repo.ConsumeVerificationToken(ctx, "abc")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestRevokeToken(t *testing.T) {
	repo, mr, _ := newTestRepo(t)
	ctx := context.Background()

	revoked, err := repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	first, err := repo.RevokeToken(ctx, "jti-1", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	revoked, err = repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	again, err := repo.RevokeToken(ctx, "jti-1", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, again, "second revocation reports the token was already revoked")

	mr.FastForward(11 * time.Minute)
	revoked, err = repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeToken_IgnoresExpired(t *testing.T) {
	repo, mr, _ := newTestRepo(t)

	_, err := repo.RevokeToken(context.Background(), "jti-2", -time.Second)
	require.NoError(t, err)
	assert.False(t, mr.Exists(revokedPrefix+"jti-2"))
}

func TestTokenRepository_ReportsRedisErrors(t *testing.T) {
	repo, mr, m := newTestRepo(t)
	mr.SetError("ERR server unavailable")

	_, err := repo.IsRevoked(context.Background(), "jti-3")
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisOperations.WithLabelValues("revoked_check", "error")))
}
