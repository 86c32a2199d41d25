// Package reducer implements the pure state machine that folds creation and
// patch events into entity snapshots.
//
// Every function is synchronous, side-effect free and allocates only its
// return value. ApplyPatch returns nil to signal a tombstone, the input
// pointer unchanged for a no-op, and a fresh snapshot otherwise; callers own
// the snapshots between invocations and must serialize delivery per entity
// key themselves. Only update patches are protected against out-of-order
// delivery (last-writer-wins by event timestamp); reaction, attachment,
// blob and thread patches apply in arrival order.
package reducer

import (
	"time"

	"cardstate/pkg/events"
	"cardstate/pkg/models"
)

// NewMessage builds a Message from a creation event. The event's message id
// wins over fallbackID; with neither present it fails with ErrIDRequired.
func NewMessage(ev *events.MessageCreate, fallbackID string) (*models.Message, error) {
	id := ev.MessageID
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
	return &models.Message{
		ID:          id,
		CardID:      ev.CardID,
		Type:        ev.Type,
		Content:     ev.Content,
		Extra:       ev.Extra,
		Creator:     ev.Creator,
		Created:     created,
		Language:    ev.Language,
		Reactions:   map[string][]models.Reaction{},
		Attachments: []models.Attachment{},
		Threads:     []models.ThreadLink{},
	}, nil
}

// ApplyPatch folds one patch event into the message snapshot. It returns
// nil when the message was removed, m itself when the patch was a no-op,
// and a new snapshot otherwise. Patches addressed to a different card or
// message are ignored.
func ApplyPatch(m *models.Message, p *events.Patch) *models.Message {
	if m == nil {
		return nil
	}
	if p.CardID != m.CardID || p.MessageID != m.ID {
		return m
	}
	switch p.Kind {
	case events.KindUpdatePatch:
		return applyUpdate(m, p)
	case events.KindRemovePatch:
		return nil
	case events.KindReactionPatch:
		return applyReaction(m, p)
	case events.KindAttachmentPatch:
		return applyAttachments(m, p.Attachments, p)
	case events.KindBlobPatch:
		return applyBlobs(m, p)
	case events.KindThreadPatch:
		return applyThread(m, p)
	}
	return m
}

// applyUpdate merges the patch's present fields. A patch dated before the
// message's last modification is dropped whole: last-writer-wins by event
// timestamp, not arrival order.
func applyUpdate(m *models.Message, p *events.Patch) *models.Message {
	op := p.Update
	if op == nil {
		return m
	}
	if m.Modified != 0 && p.Date < m.Modified {
		return m
	}
	next := shallowCopy(m)
	if op.Type != "" {
		next.Type = op.Type
	}
	if op.Content != nil {
		next.Content = *op.Content
	}
	if op.Extra != nil {
		next.Extra = op.Extra
	}
	if op.Language != nil {
		next.Language = *op.Language
	}
	next.Modified = p.Date
	return next
}

func applyReaction(m *models.Message, p *events.Patch) *models.Message {
	op := p.Reaction
	if op == nil {
		return m
	}
	switch op.Opcode {
	case events.OpAdd:
		if m.ReactionFor(op.Reaction, op.Person) != nil {
			return m
		}
		next := shallowCopy(m)
		next.Reactions = copyReactions(m.Reactions)
		next.Reactions[op.Reaction] = append(next.Reactions[op.Reaction],
			models.Reaction{Person: op.Person, Count: 1, Date: p.Date})
		return next
	case events.OpRemove:
		if m.ReactionFor(op.Reaction, op.Person) == nil {
			return m
		}
		next := shallowCopy(m)
		next.Reactions = copyReactions(m.Reactions)
		kept := next.Reactions[op.Reaction][:0:0]
		for _, r := range next.Reactions[op.Reaction] {
			if r.Person != op.Person {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(next.Reactions, op.Reaction)
		} else {
			next.Reactions[op.Reaction] = kept
		}
		return next
	}
	return m
}

// shallowCopy clones the message struct. Nested maps and slices stay
// shared; mutating paths copy the containers they touch before writing.
func shallowCopy(m *models.Message) *models.Message {
	c := *m
	return &c
}

func copyReactions(src map[string][]models.Reaction) map[string][]models.Reaction {
	out := make(map[string][]models.Reaction, len(src))
	for k, v := range src {
		out[k] = append([]models.Reaction(nil), v...)
	}
	return out
}
