package repository

import (
	"context"
	"database/sql"
	"time"

	"cratebench/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.CrateEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.CrateEvent, error)
}

// MeasurementSink persists per-tick measurement rows. One sink per
// monitoring session; the bench service opens it when a session starts
// and closes it when the session ends.
type MeasurementSink interface {
	Append(rows []models.Measurement) error
	Close() error
	Path() string
}

type Repository struct {
	Events EventRepo
	Auth   Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Events: NewEventSQLite(db),
		Auth:   NewUserRepository(db),
	}
}
