//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

func TestRedisJobStatusCache(t *testing.T) {
	ctx := context.Background()

	redisContainer, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(ctx) })

	url, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, RedisConfig{URL: url, Prefix: "test:"})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	jobs := NewJobStatusCache(client, time.Minute, nil)
	jobs.Put(ctx, JobStatus{DocumentID: "doc-1", PipelineStatus: domain.PipelineStatusUploaded, Step: "toc"})

	status := jobs.Resolve(ctx, &domain.Document{ID: "doc-1", PipelineStatus: domain.PipelineStatusUploaded})
	assert.True(t, status.Cached)
	assert.Equal(t, "toc", status.Step)
}
