package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/PortNumber53/resto-entitlements/internal/models"
)

// AppendEvent inserts an audit event. Events are never updated or deleted.
func (s *queries) AppendEvent(ctx context.Context, e *models.SubscriptionEvent) error {
	if e.EventData == nil {
		e.EventData = models.JSONB{}
	}
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO subscription_events (restaurant_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		e.RestaurantID, string(e.EventType), e.EventData, e.CreatedAt.UTC(),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert subscription event: %w", err)
	}
	return nil
}

// ListEvents returns events newest first.
func (s *queries) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.SubscriptionEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.RestaurantID != nil {
		args = append(args, *filter.RestaurantID)
		where = append(where, fmt.Sprintf("restaurant_id = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, string(filter.EventType))
		where = append(where, fmt.Sprintf("event_type = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > models.MaxEventListLimit {
		limit = models.MaxEventListLimit
	}

	query := `SELECT id, restaurant_id, event_type, event_data, created_at FROM subscription_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscription events: %w", err)
	}
	defer rows.Close()

	var events []models.SubscriptionEvent
	for rows.Next() {
		var (
			e         models.SubscriptionEvent
			eventType string
		)
		if err := rows.Scan(&e.ID, &e.RestaurantID, &eventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription event: %w", err)
		}
		e.EventType = models.EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}
