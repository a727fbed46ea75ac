package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink persists in-app notification records.
type Sink struct {
	pool  *pgxpool.Pool
	idGen func() string
}

// NewSink wires a pgxpool-backed notification sink.
func NewSink(pool *pgxpool.Pool) *Sink {
	return &Sink{
		pool:  pool,
		idGen: func() string { return uuid.NewString() },
	}
}

// Create inserts one notification row and returns its identifier.
func (s *Sink) Create(ctx context.Context, params CreateParams) (string, error) {
	if params.UserAddress == "" {
		return "", fmt.Errorf("notify: user address required")
	}
	if params.Priority == "" {
		params.Priority = PriorityMedium
	}

	payload := params.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("notify: marshal payload: %w", err)
	}

	const insertSQL = `
		INSERT INTO notifications (id, user_address, type, title, message, priority, action_url, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`

	id := s.idGen()
	if _, err := s.pool.Exec(ctx, insertSQL,
		id,
		params.UserAddress,
		params.Type,
		params.Title,
		params.Message,
		params.Priority,
		params.ActionURL,
		payloadBytes,
	); err != nil {
		return "", fmt.Errorf("notify: insert notification: %w", err)
	}

	return id, nil
}
