package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const insertEventSQL = `INSERT INTO activity_events (id, user_id, username, full_name, kind, message, created_at)
VALUES (:id, :user_id, :username, :full_name, :kind, :message, :created_at)`

type eventRow struct {
	ID        uuid.UUID `db:"id"`
	UserID    int64     `db:"user_id"`
	Username  string    `db:"username"`
	FullName  string    `db:"full_name"`
	Kind      string    `db:"kind"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// PostgresSink stores events in the activity_events table.
type PostgresSink struct {
	db *sqlx.DB
}

func NewPostgresSink(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, ev Event) error {
	row := eventRow{
		ID:        uuid.New(),
		UserID:    ev.Actor.ID,
		Username:  ev.Actor.Username,
		FullName:  ev.Actor.FullName,
		Kind:      ev.Kind,
		Message:   ev.Text,
		CreatedAt: ev.At.UTC(),
	}
	if _, err := s.db.NamedExecContext(ctx, insertEventSQL, row); err != nil {
		return fmt.Errorf("activity: insert event: %w", err)
	}
	return nil
}
