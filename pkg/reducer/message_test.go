package reducer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cardstate/pkg/events"
	"cardstate/pkg/models"
)

func strptr(s string) *string { return &s }

func newTestMessage(t *testing.T) *models.Message {
	t.Helper()
	m, err := NewMessage(&events.MessageCreate{
		Kind:    events.KindMessageCreate,
		CardID:  "c1",
		Creator: "author",
		Content: "hello",
		Date:    1000,
	}, "m1")
	require.NoError(t, err)
	return m
}

func TestNewMessage_IDRequired(t *testing.T) {
	_, err := NewMessage(&events.MessageCreate{CardID: "c1"}, "")
	require.ErrorIs(t, err, ErrIDRequired)
}

func TestNewMessage_EventIDWinsOverFallback(t *testing.T) {
	m, err := NewMessage(&events.MessageCreate{CardID: "c1", MessageID: "evid"}, "fb")
	require.NoError(t, err)
	require.Equal(t, "evid", m.ID)

	m, err = NewMessage(&events.MessageCreate{CardID: "c1"}, "fb")
	require.NoError(t, err)
	require.Equal(t, "fb", m.ID)
}

func TestNewMessage_DefaultsCreatedToNow(t *testing.T) {
	m, err := NewMessage(&events.MessageCreate{CardID: "c1"}, "m1")
	require.NoError(t, err)
	require.NotZero(t, m.Created)
	require.NotNil(t, m.Reactions)
	require.NotNil(t, m.Attachments)
	require.NotNil(t, m.Threads)
}

func TestApplyPatch_IdentityGuard(t *testing.T) {
	m := newTestMessage(t)

	wrongCard := &events.Patch{Kind: events.KindRemovePatch, CardID: "other", MessageID: "m1"}
	require.Same(t, m, ApplyPatch(m, wrongCard))

	wrongMsg := &events.Patch{Kind: events.KindRemovePatch, CardID: "c1", MessageID: "other"}
	require.Same(t, m, ApplyPatch(m, wrongMsg))
}

func TestApplyPatch_RemoveTombstones(t *testing.T) {
	m := newTestMessage(t)
	require.Nil(t, ApplyPatch(m, &events.Patch{Kind: events.KindRemovePatch, CardID: "c1", MessageID: "m1"}))
}

func TestApplyPatch_UpdateMergesFields(t *testing.T) {
	m := newTestMessage(t)
	next := ApplyPatch(m, &events.Patch{
		Kind: events.KindUpdatePatch, CardID: "c1", MessageID: "m1", Date: 2000,
		Update: &events.UpdateOp{Content: strptr("edited"), Language: strptr("en")},
	})
	require.NotSame(t, m, next)
	require.Equal(t, "edited", next.Content)
	require.Equal(t, "en", next.Language)
	require.EqualValues(t, 2000, next.Modified)

	// input snapshot is untouched
	require.Equal(t, "hello", m.Content)
	require.Zero(t, m.Modified)
}

func TestApplyPatch_StaleUpdateDropped(t *testing.T) {
	m := newTestMessage(t)
	const t0 = 5000
	m = ApplyPatch(m, &events.Patch{
		Kind: events.KindUpdatePatch, CardID: "c1", MessageID: "m1", Date: t0,
		Update: &events.UpdateOp{Content: strptr("old")},
	})
	require.Equal(t, "old", m.Content)

	// a patch dated before the last modification is dropped whole
	stale := ApplyPatch(m, &events.Patch{
		Kind: events.KindUpdatePatch, CardID: "c1", MessageID: "m1", Date: t0 - 1,
		Update: &events.UpdateOp{Content: strptr("stale"), Language: strptr("de")},
	})
	require.Same(t, m, stale)
	require.Equal(t, "old", stale.Content)
	require.Empty(t, stale.Language)
}

func TestApplyPatch_UpdateEqualDateApplies(t *testing.T) {
	m := newTestMessage(t)
	m = ApplyPatch(m, &events.Patch{
		Kind: events.KindUpdatePatch, CardID: "c1", MessageID: "m1", Date: 5000,
		Update: &events.UpdateOp{Content: strptr("first")},
	})
	next := ApplyPatch(m, &events.Patch{
		Kind: events.KindUpdatePatch, CardID: "c1", MessageID: "m1", Date: 5000,
		Update: &events.UpdateOp{Content: strptr("second")},
	})
	require.Equal(t, "second", next.Content)
}

func TestApplyPatch_ReactionAddIdempotent(t *testing.T) {
	m := newTestMessage(t)
	add := &events.Patch{
		Kind: events.KindReactionPatch, CardID: "c1", MessageID: "m1", Date: 10,
		Reaction: &events.ReactionOp{Opcode: events.OpAdd, Reaction: "👍", Person: "p1"},
	}
	m2 := ApplyPatch(m, add)
	require.Len(t, m2.Reactions["👍"], 1)

	// duplicate add is a no-op returning the same snapshot
	m3 := ApplyPatch(m2, add)
	require.Same(t, m2, m3)
	require.Len(t, m3.Reactions["👍"], 1)
}

func TestApplyPatch_ReactionRemove(t *testing.T) {
	m := newTestMessage(t)
	add := &events.Patch{
		Kind: events.KindReactionPatch, CardID: "c1", MessageID: "m1",
		Reaction: &events.ReactionOp{Opcode: events.OpAdd, Reaction: "👍", Person: "p1"},
	}
	rm := &events.Patch{
		Kind: events.KindReactionPatch, CardID: "c1", MessageID: "m1",
		Reaction: &events.ReactionOp{Opcode: events.OpRemove, Reaction: "👍", Person: "p1"},
	}

	m2 := ApplyPatch(m, add)
	m3 := ApplyPatch(m2, rm)
	require.Empty(t, m3.Reactions["👍"])

	// removing again is a no-op, not an error
	m4 := ApplyPatch(m3, rm)
	require.Same(t, m3, m4)
	require.Empty(t, m4.Reactions["👍"])
}

func TestApplyPatch_ReactionRemoveAbsentPair(t *testing.T) {
	m := newTestMessage(t)
	m2 := ApplyPatch(m, &events.Patch{
		Kind: events.KindReactionPatch, CardID: "c1", MessageID: "m1",
		Reaction: &events.ReactionOp{Opcode: events.OpRemove, Reaction: "🎉", Person: "nobody"},
	})
	require.Same(t, m, m2)
}

func TestApplyPatch_ReactionKeepsOtherPersons(t *testing.T) {
	m := newTestMessage(t)
	for _, p := range []string{"p1", "p2"} {
		m = ApplyPatch(m, &events.Patch{
			Kind: events.KindReactionPatch, CardID: "c1", MessageID: "m1",
			Reaction: &events.ReactionOp{Opcode: events.OpAdd, Reaction: "👍", Person: p},
		})
	}
	m = ApplyPatch(m, &events.Patch{
		Kind: events.KindReactionPatch, CardID: "c1", MessageID: "m1",
		Reaction: &events.ReactionOp{Opcode: events.OpRemove, Reaction: "👍", Person: "p1"},
	})
	require.Len(t, m.Reactions["👍"], 1)
	require.Equal(t, "p2", m.Reactions["👍"][0].Person)
}

func TestApplyPatch_UnknownKindIsNoop(t *testing.T) {
	m := newTestMessage(t)
	require.Same(t, m, ApplyPatch(m, &events.Patch{Kind: "message.unknown", CardID: "c1", MessageID: "m1"}))
}
