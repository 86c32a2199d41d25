package reducer

import (
	"cardstate/pkg/events"
	"cardstate/pkg/models"
)

// applyThread folds one thread-link sub-operation into the message.
// attach is idempotent per thread id; update/addReply/removeReply require
// the thread to be attached already and no-op otherwise.
func applyThread(m *models.Message, p *events.Patch) *models.Message {
	op := p.Thread
	if op == nil || op.ThreadID == "" {
		return m
	}
	idx := threadIndex(m.Threads, op.ThreadID)

	switch op.Opcode {
	case events.OpAttach:
		if idx >= 0 {
			return m
		}
		next := shallowCopy(m)
		next.Threads = append(append([]models.ThreadLink(nil), m.Threads...), models.ThreadLink{
			// A derived thread is itself a card, so the link's card is the
			// thread card.
			CardID:         op.ThreadID,
			MessageID:      m.ID,
			ThreadID:       op.ThreadID,
			ThreadType:     op.ThreadType,
			RepliesCount:   0,
			RepliedPersons: map[string]int{},
		})
		return next

	case events.OpUpdate:
		if idx < 0 || op.ThreadType == "" || m.Threads[idx].ThreadType == op.ThreadType {
			return m
		}
		next := shallowCopy(m)
		next.Threads = append([]models.ThreadLink(nil), m.Threads...)
		next.Threads[idx].ThreadType = op.ThreadType
		return next

	case events.OpAddReply:
		if idx < 0 {
			return m
		}
		next := shallowCopy(m)
		next.Threads = append([]models.ThreadLink(nil), m.Threads...)
		t := &next.Threads[idx]
		t.RepliesCount++
		if p.Date > t.LastReplyDate {
			t.LastReplyDate = p.Date
		}
		t.RepliedPersons = copyCounts(t.RepliedPersons)
		t.RepliedPersons[op.Person]++
		return next

	case events.OpRemoveReply:
		if idx < 0 {
			return m
		}
		next := shallowCopy(m)
		next.Threads = append([]models.ThreadLink(nil), m.Threads...)
		t := &next.Threads[idx]
		if t.RepliesCount > 0 {
			t.RepliesCount--
		}
		t.RepliedPersons = copyCounts(t.RepliedPersons)
		if t.RepliedPersons[op.Person] > 0 {
			t.RepliedPersons[op.Person]--
		}
		return next
	}
	return m
}

func threadIndex(links []models.ThreadLink, threadID string) int {
	for i := range links {
		if links[i].ThreadID == threadID {
			return i
		}
	}
	return -1
}

func copyCounts(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
