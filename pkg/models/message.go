package models

// Message is the reduced snapshot of one collaborative message on a card.
// All timestamps are unix nanoseconds; zero means unset.
type Message struct {
	ID      string                 `json:"id"`
	CardID  string                 `json:"card"`
	Type    string                 `json:"type,omitempty"`
	Content string                 `json:"content,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
	Creator string                 `json:"creator,omitempty"`
	Created int64                  `json:"created"`
	// Modified is set only by content-affecting patches and drives the
	// last-writer-wins comparison for update patches.
	Modified int64  `json:"modified,omitempty"`
	Language string `json:"language,omitempty"`
	// Reactions maps an emoji to its entries; at most one entry per person
	// per emoji.
	Reactions map[string][]Reaction `json:"reactions,omitempty"`
	// Attachments is unique by attachment ID.
	Attachments []Attachment `json:"attachments,omitempty"`
	// Threads is unique by thread ID.
	Threads []ThreadLink `json:"threads,omitempty"`
}

// Reaction records one person's reaction under an emoji key.
type Reaction struct {
	Person string `json:"person"`
	Count  int    `json:"count"`
	Date   int64  `json:"date,omitempty"`
}

// ThreadLink points from a message to a derived conversation thread and
// carries aggregate reply statistics.
type ThreadLink struct {
	CardID        string `json:"card"`
	MessageID     string `json:"message"`
	ThreadID      string `json:"thread"`
	ThreadType    string `json:"threadType,omitempty"`
	RepliesCount  int    `json:"repliesCount"`
	LastReplyDate int64  `json:"lastReplyDate,omitempty"`
	// RepliedPersons maps a person to their reply count (>= 0).
	RepliedPersons map[string]int `json:"repliedPersons,omitempty"`
}

// ReactionFor returns the reaction entry for person under emoji, or nil.
func (m *Message) ReactionFor(emoji, person string) *Reaction {
	for i := range m.Reactions[emoji] {
		if m.Reactions[emoji][i].Person == person {
			return &m.Reactions[emoji][i]
		}
	}
	return nil
}

// AttachmentByID returns the attachment with the given id, or nil.
func (m *Message) AttachmentByID(id string) *Attachment {
	for i := range m.Attachments {
		if m.Attachments[i].ID == id {
			return &m.Attachments[i]
		}
	}
	return nil
}

// ThreadByID returns the thread link with the given thread id, or nil.
func (m *Message) ThreadByID(threadID string) *ThreadLink {
	for i := range m.Threads {
		if m.Threads[i].ThreadID == threadID {
			return &m.Threads[i]
		}
	}
	return nil
}
