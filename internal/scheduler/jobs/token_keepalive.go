package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/quantlab/scanbridge/internal/auth"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// refreshMargin is how close to expiry the token may get before the
// keepalive refreshes it proactively.
const refreshMargin = 15 * time.Minute

// TokenKeepaliveJob refreshes the broker token before it expires, so the
// first request after a quiet period never eats the refresh latency.
type TokenKeepaliveJob struct {
	tokens *auth.Manager
	logger *logger.Logger
}

// NewTokenKeepaliveJob creates a new token keepalive job
func NewTokenKeepaliveJob(tokens *auth.Manager, log *logger.Logger) *TokenKeepaliveJob {
	return &TokenKeepaliveJob{
		tokens: tokens,
		logger: log,
	}
}

// Name returns the job name
func (j *TokenKeepaliveJob) Name() string {
	return "token_keepalive"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *TokenKeepaliveJob) Schedule() string {
	return "30 */5 * * * *"
}

// Run refreshes the token when it is close to expiry
func (j *TokenKeepaliveJob) Run(ctx context.Context) error {
	expiresAt := j.tokens.ExpiresAt()
	if expiresAt.IsZero() || time.Until(expiresAt) > refreshMargin {
		return nil
	}

	if err := j.tokens.Refresh(ctx); err != nil {
		return fmt.Errorf("keepalive refresh: %w", err)
	}

	j.logger.WithField("expires_at", j.tokens.ExpiresAt()).Info("Refreshed broker token")
	return nil
}
