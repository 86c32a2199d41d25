package models

// Notification is immutable once created.
type Notification struct {
	ID        string                 `json:"id"`
	CardID    string                 `json:"card"`
	ContextID string                 `json:"context"`
	Account   string                 `json:"account"`
	Type      string                 `json:"type,omitempty"`
	Read      bool                   `json:"read,omitempty"`
	Content   map[string]interface{} `json:"content,omitempty"`
	Created   int64                  `json:"created"`
	MessageID string                 `json:"message,omitempty"`
	Creator   string                 `json:"creator,omitempty"`
	BlobID    string                 `json:"blob,omitempty"`
}

// NotificationContext tracks one account's notification state for a card.
type NotificationContext struct {
	ID      string `json:"id"`
	CardID  string `json:"card"`
	Account string `json:"account"`
	// LastView/LastUpdate/LastNotify are monotonic counters supplied by the
	// caller; updates merge "present wins", not by comparison.
	LastView   int64 `json:"lastView,omitempty"`
	LastUpdate int64 `json:"lastUpdate,omitempty"`
	LastNotify int64 `json:"lastNotify,omitempty"`
	// Notifications supports lazy, partial population: Total may exceed
	// len(Items) when only a page is loaded.
	Notifications *NotificationList `json:"notifications,omitempty"`
}

// NotificationList is a partially-populated notification window with the
// total count attached.
type NotificationList struct {
	Total int            `json:"total"`
	Items []Notification `json:"items,omitempty"`
}
