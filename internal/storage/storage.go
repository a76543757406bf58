// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"matchpulse/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateFilter(ctx context.Context, f *model.Filter) error
	GetFilter(ctx context.Context, id string) (*model.Filter, error)
	ListFiltersForOwner(ctx context.Context, userID string) ([]model.Filter, error)
	ListActiveFilters(ctx context.Context) ([]model.Filter, error)
	UpdateFilter(ctx context.Context, f *model.Filter) error
	DeleteFilter(ctx context.Context, id string) error

	UpdateFilterCounters(ctx context.Context, id string, triggerCount int64, successRate *float64) error
	IncrementTriggerCount(ctx context.Context, id string) (int64, error)
	RecordOutcome(ctx context.Context, id string, won bool) (float64, error)

	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)

	TelegramChatID(ctx context.Context, userID string) (int64, bool, error)
	LinkTelegramChat(ctx context.Context, userID string, chatID int64) error

	Close() error
}
