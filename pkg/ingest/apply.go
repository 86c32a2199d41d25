package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"cardstate/pkg/events"
	"cardstate/pkg/reducer"
	"cardstate/pkg/store"
)

// Reducer outcomes, used as the patch_outcomes_total label.
const (
	OutcomeApplied   = "applied"
	OutcomeNoop      = "noop"
	OutcomeTombstone = "tombstone"
	OutcomeError     = "error"
)

// Apply decodes one queued event and folds it into the stored snapshot.
// Patches against absent entities and patches the reducer rejects are
// reported as noops: replayed and misaddressed events must not fail the
// pipeline.
func Apply(op *Op) (string, error) {
	switch op.Kind {
	case events.KindMessageCreate:
		return applyMessageCreate(op)
	case events.KindUpdatePatch, events.KindRemovePatch, events.KindReactionPatch,
		events.KindAttachmentPatch, events.KindBlobPatch, events.KindThreadPatch:
		return applyMessagePatch(op)
	case events.KindNotificationCreate:
		return applyNotificationCreate(op)
	case events.KindContextCreate:
		return applyContextCreate(op)
	case events.KindContextUpdate:
		return applyContextUpdate(op)
	case events.KindContextRemove:
		return applyContextRemove(op)
	}
	return OutcomeError, fmt.Errorf("unknown event kind %q", op.Kind)
}

func applyMessageCreate(op *Op) (string, error) {
	var ev events.MessageCreate
	if err := json.Unmarshal(op.Payload, &ev); err != nil {
		return OutcomeError, fmt.Errorf("invalid message create json: %w", err)
	}
	// reconcile identity and defaults from op metadata
	if ev.CardID == "" {
		ev.CardID = op.CardID
	}
	if ev.CardID == "" {
		return OutcomeError, fmt.Errorf("missing card id for message create")
	}
	if ev.Date == 0 {
		ev.Date = op.TS
	}
	if ev.Creator == "" {
		ev.Creator = op.Extras["actor"]
	}
	m, err := reducer.NewMessage(&ev, op.ID)
	if err != nil {
		return OutcomeError, err
	}
	if err := store.SaveMessage(m); err != nil {
		return OutcomeError, err
	}
	return OutcomeApplied, nil
}

func applyMessagePatch(op *Op) (string, error) {
	var p events.Patch
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return OutcomeError, fmt.Errorf("invalid patch json: %w", err)
	}
	p.Kind = op.Kind
	if p.CardID == "" {
		p.CardID = op.CardID
	}
	if p.MessageID == "" {
		p.MessageID = op.ID
	}
	if p.Date == 0 {
		p.Date = op.TS
	}
	if p.Actor == "" {
		p.Actor = op.Extras["actor"]
	}

	cur, err := store.GetMessage(p.CardID, p.MessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// patch against an absent (or already removed) message
			return OutcomeNoop, nil
		}
		return OutcomeError, err
	}

	next := reducer.ApplyPatch(cur, &p)
	switch {
	case next == cur:
		return OutcomeNoop, nil
	case next == nil:
		if err := store.DeleteMessage(p.CardID, p.MessageID); err != nil {
			return OutcomeError, err
		}
		return OutcomeTombstone, nil
	default:
		if err := store.SaveMessage(next); err != nil {
			return OutcomeError, err
		}
		return OutcomeApplied, nil
	}
}

func applyNotificationCreate(op *Op) (string, error) {
	var ev events.NotificationCreate
	if err := json.Unmarshal(op.Payload, &ev); err != nil {
		return OutcomeError, fmt.Errorf("invalid notification json: %w", err)
	}
	if ev.Date == 0 {
		ev.Date = op.TS
	}
	n, err := reducer.NewNotification(&ev, op.ID)
	if err != nil {
		return OutcomeError, err
	}
	if err := store.SaveNotification(n); err != nil {
		return OutcomeError, err
	}
	return OutcomeApplied, nil
}

func applyContextCreate(op *Op) (string, error) {
	var ev events.ContextCreate
	if err := json.Unmarshal(op.Payload, &ev); err != nil {
		return OutcomeError, fmt.Errorf("invalid context json: %w", err)
	}
	c, err := reducer.NewNotificationContext(&ev, op.ID)
	if err != nil {
		return OutcomeError, err
	}
	if err := store.SaveContext(c); err != nil {
		return OutcomeError, err
	}
	return OutcomeApplied, nil
}

func applyContextUpdate(op *Op) (string, error) {
	var ev events.ContextUpdate
	if err := json.Unmarshal(op.Payload, &ev); err != nil {
		return OutcomeError, fmt.Errorf("invalid context update json: %w", err)
	}
	if ev.ContextID == "" {
		ev.ContextID = op.ID
	}
	if ev.Account == "" {
		ev.Account = op.Extras["account"]
	}
	cur, err := store.GetContext(ev.Account, ev.ContextID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OutcomeNoop, nil
		}
		return OutcomeError, err
	}
	next := reducer.UpdateNotificationContext(cur, &ev)
	if next == cur {
		return OutcomeNoop, nil
	}
	if err := store.SaveContext(next); err != nil {
		return OutcomeError, err
	}
	return OutcomeApplied, nil
}

func applyContextRemove(op *Op) (string, error) {
	var ev events.ContextRemove
	if err := json.Unmarshal(op.Payload, &ev); err != nil {
		return OutcomeError, fmt.Errorf("invalid context remove json: %w", err)
	}
	if ev.ContextID == "" {
		ev.ContextID = op.ID
	}
	if ev.Account == "" {
		ev.Account = op.Extras["account"]
	}
	cur, err := store.GetContext(ev.Account, ev.ContextID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OutcomeNoop, nil
		}
		return OutcomeError, err
	}
	next := reducer.RemoveNotificationContext(cur, &ev)
	if next == cur {
		return OutcomeNoop, nil
	}
	if err := store.DeleteContext(ev.Account, ev.ContextID); err != nil {
		return OutcomeError, err
	}
	return OutcomeTombstone, nil
}
