package reducer

import (
	"cardstate/pkg/events"
	"cardstate/pkg/models"
)

// NewNotificationContext builds a NotificationContext from a creation
// event; the id-required contract matches NewMessage.
func NewNotificationContext(ev *events.ContextCreate, fallbackID string) (*models.NotificationContext, error) {
	id := ev.ContextID
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	return &models.NotificationContext{
		ID:         id,
		CardID:     ev.CardID,
		Account:    ev.Account,
		LastView:   ev.LastView,
		LastUpdate: ev.LastUpdate,
		LastNotify: ev.LastNotify,
	}, nil
}

// UpdateNotificationContext merges the event's lastView/lastUpdate/
// lastNotify into the context: a present (non-zero) value wins, an absent
// one keeps the existing value. Events addressed to a different account or
// context id are ignored.
func UpdateNotificationContext(c *models.NotificationContext, ev *events.ContextUpdate) *models.NotificationContext {
	if c == nil {
		return nil
	}
	if c.Account != ev.Account || c.ID != ev.ContextID {
		return c
	}
	if ev.LastView == 0 && ev.LastUpdate == 0 && ev.LastNotify == 0 {
		return c
	}
	next := *c
	if ev.LastView != 0 {
		next.LastView = ev.LastView
	}
	if ev.LastUpdate != 0 {
		next.LastUpdate = ev.LastUpdate
	}
	if ev.LastNotify != 0 {
		next.LastNotify = ev.LastNotify
	}
	return &next
}

// RemoveNotificationContext tombstones the context on identity match and
// returns it unchanged otherwise.
func RemoveNotificationContext(c *models.NotificationContext, ev *events.ContextRemove) *models.NotificationContext {
	if c == nil {
		return nil
	}
	if c.Account != ev.Account || c.ID != ev.ContextID {
		return c
	}
	return nil
}
