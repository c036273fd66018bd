package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

// JobStatus is the polling view of a document's background work.
type JobStatus struct {
	DocumentID     string                `json:"document_id"`
	PipelineStatus domain.PipelineStatus `json:"pipeline_status"`
	Phase          string                `json:"phase,omitempty"`
	Step           string                `json:"step,omitempty"`
	Message        string                `json:"message,omitempty"`
	Done           int                   `json:"done,omitempty"`
	Total          int                   `json:"total,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
	// Cached is false when the status was built from the store alone.
	Cached bool `json:"cached"`
}

// JobStatusCache is a bounded, expiring, advisory cache of job progress keyed
// by document ID. It is never consulted for a transition decision: Resolve
// always defers to the persisted document.
type JobStatusCache struct {
	client Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewJobStatusCache creates a job-status cache over client.
func NewJobStatusCache(client Client, ttl time.Duration, logger *observability.Logger) *JobStatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &JobStatusCache{client: client, ttl: ttl, logger: logger}
}

func jobKey(documentID string) string {
	return CacheKey("job", documentID)
}

// Put records progress. Failures are logged and dropped.
func (c *JobStatusCache) Put(ctx context.Context, status JobStatus) {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(status)
	if err != nil {
		c.logger.Warn().Err(err).Str("document_id", status.DocumentID).Msg("Failed to encode job status")
		return
	}
	if err := c.client.Set(ctx, jobKey(status.DocumentID), data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("document_id", status.DocumentID).Msg("Failed to cache job status")
	}
}

// Get returns the cached entry for a document, if present and not expired.
func (c *JobStatusCache) Get(ctx context.Context, documentID string) (*JobStatus, bool) {
	data, err := c.client.Get(ctx, jobKey(documentID))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("document_id", documentID).Msg("Job status cache read failed")
		}
		return nil, false
	}
	var status JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		c.logger.Warn().Err(err).Str("document_id", documentID).Msg("Failed to decode cached job status")
		return nil, false
	}
	status.Cached = true
	return &status, true
}

// Forget drops a document's entry.
func (c *JobStatusCache) Forget(ctx context.Context, documentID string) {
	if err := c.client.Delete(ctx, jobKey(documentID)); err != nil {
		c.logger.Debug().Err(err).Str("document_id", documentID).Msg("Job status cache delete failed")
	}
}

// Resolve merges the cached entry with the persisted document. The persisted
// pipeline status always wins: a cached entry that disagrees is discarded.
func (c *JobStatusCache) Resolve(ctx context.Context, doc *domain.Document) JobStatus {
	persisted := JobStatus{
		DocumentID:     doc.ID,
		PipelineStatus: doc.PipelineStatus,
		UpdatedAt:      doc.UpdatedAt,
	}
	if doc.LastError != nil {
		persisted.Message = *doc.LastError
	}

	cached, ok := c.Get(ctx, doc.ID)
	if !ok {
		return persisted
	}
	if cached.PipelineStatus != doc.PipelineStatus {
		c.logger.Debug().
			Str("document_id", doc.ID).
			Str("cached", string(cached.PipelineStatus)).
			Str("persisted", string(doc.PipelineStatus)).
			Msg("Discarding stale job status")
		c.Forget(ctx, doc.ID)
		return persisted
	}
	if cached.Message == "" {
		cached.Message = persisted.Message
	}
	return *cached
}
