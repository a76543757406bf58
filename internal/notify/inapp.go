package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"matchpulse/internal/model"
)

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// InAppChannel delivers fire events by persisting them as notification
// rows, which the HTTP API serves back to the owner.
type InAppChannel struct {
	store NotificationStore
}

// NewInAppChannel creates the channel backed by the given store.
func NewInAppChannel(store NotificationStore) *InAppChannel {
	return &InAppChannel{store: store}
}

// Name implements Channel.
func (c *InAppChannel) Name() string { return "in_app" }

// Enabled implements Channel.
func (c *InAppChannel) Enabled(f model.Filter) bool { return f.NotificationEnabled }

// Deliver implements Channel.
func (c *InAppChannel) Deliver(ctx context.Context, ev model.FireEvent) error {
	n := &model.Notification{
		ID:        uuid.NewString(),
		UserID:    ev.Filter.UserID,
		FilterID:  ev.Filter.ID,
		MatchID:   ev.Match.ID,
		Message:   FormatFireMessage(ev),
		CreatedAt: ev.FiredAt,
	}
	if err := c.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	return nil
}
