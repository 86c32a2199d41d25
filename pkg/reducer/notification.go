package reducer

import (
	"time"

	"cardstate/pkg/events"
	"cardstate/pkg/models"
)

// NewNotification builds a Notification; notifications are immutable once
// created, so there are no update or remove reducers for them.
func NewNotification(ev *events.NotificationCreate, fallbackID string) (*models.Notification, error) {
	id := ev.NotificationID
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	created := ev.Date
	if created == 0 {
		created = time.Now().UTC().UnixNano()
	}
	return &models.Notification{
		ID:        id,
		CardID:    ev.CardID,
		ContextID: ev.ContextID,
		Account:   ev.Account,
		Type:      ev.Type,
		Read:      ev.Read,
		Content:   ev.Content,
		Created:   created,
		MessageID: ev.MessageID,
		Creator:   ev.Creator,
		BlobID:    ev.BlobID,
	}, nil
}
