package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

// ResearchChannel is the NOTIFY channel carrying research requests.
const ResearchChannel = "research_requested"

// NotifyResearchRequested publishes a research event.
func (db *DB) NotifyResearchRequested(ctx context.Context, event types.ResearchEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid research event: %w", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal research event: %w", err)
	}
	if _, err := db.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, ResearchChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish research event: %w", err)
	}
	return nil
}

// ListenResearchEvents blocks, calling handle for each valid event until ctx
// is cancelled. Events are handled one at a time. Malformed payloads and
// handler errors are logged and skipped.
func (db *DB) ListenResearchEvents(ctx context.Context, logger *zap.Logger, handle func(ctx context.Context, event types.ResearchEvent) error) error {
	logger = logging.OrNop(logger)
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ResearchChannel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ResearchChannel, err)
	}
	logger.Info("listening for research events", zap.String("channel", ResearchChannel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed waiting for notification: %w", err)
		}

		event, err := ParseResearchEvent([]byte(n.Payload))
		if err != nil {
			logger.Warn("dropping malformed research event", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		if err := handle(ctx, *event); err != nil {
			logger.Error("research event failed", zap.String("run_id", event.RunID), zap.Error(err))
		}
	}
}

// ParseResearchEvent decodes and validates a notification payload.
func ParseResearchEvent(payload []byte) (*types.ResearchEvent, error) {
	var event types.ResearchEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode research event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
