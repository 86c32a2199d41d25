package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cardstate/pkg/events"
	"cardstate/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, store.Close()) })
}

func TestQueue_FullDropsNonBlocking(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue(&Op{Kind: events.KindMessageCreate, CardID: "c1"}))
	err := q.TryEnqueue(&Op{Kind: events.KindMessageCreate, CardID: "c1"})
	require.ErrorIs(t, err, ErrQueueFull)
	require.EqualValues(t, 1, q.Dropped())
	q.CloseAndDrain()
}

func TestQueue_PayloadCopiedOnEnqueue(t *testing.T) {
	q := NewQueue(4)
	payload := []byte(`{"kind":"message.create"}`)
	require.NoError(t, q.TryEnqueue(&Op{Kind: events.KindMessageCreate, CardID: "c1", Payload: payload}))
	payload[0] = 'X'

	it := <-q.Out()
	require.Equal(t, byte('{'), it.Op.Payload[0])
	it.Done()
	q.CloseAndDrain()
}

func TestQueue_ClosedRejectsProducers(t *testing.T) {
	q := NewQueue(4)
	q.Close()
	err := q.TryEnqueue(&Op{Kind: events.KindMessageCreate})
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_ExtrasNotShared(t *testing.T) {
	q := NewQueue(4)
	extras := map[string]string{"actor": "u1"}
	require.NoError(t, q.EnqueueOp(events.KindMessageCreate, "c1", "m1", nil, 0, extras))
	extras["actor"] = "mallory"

	it := <-q.Out()
	require.Equal(t, "u1", it.Op.Extras["actor"])
	it.Done()
	q.CloseAndDrain()
}

func TestApply_PatchAgainstAbsentMessageIsNoop(t *testing.T) {
	openTestStore(t)
	outcome, err := Apply(&Op{
		Kind: events.KindReactionPatch, CardID: "c1", ID: "ghost",
		Payload: []byte(`{"cardId":"c1","messageId":"ghost","reaction":{"op":"add","reaction":"x","person":"p"}}`),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)
}

func TestApply_UnknownKind(t *testing.T) {
	openTestStore(t)
	outcome, err := Apply(&Op{Kind: "card.create"})
	require.Error(t, err)
	require.Equal(t, OutcomeError, outcome)
}

func TestApply_MessageLifecycle(t *testing.T) {
	openTestStore(t)

	outcome, err := Apply(&Op{
		Kind: events.KindMessageCreate, CardID: "c1", ID: "m1", TS: 100,
		Payload: []byte(`{"kind":"message.create","cardId":"c1","content":"hi"}`),
		Extras:  map[string]string{"actor": "author"},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	m, err := store.GetMessage("c1", "m1")
	require.NoError(t, err)
	require.Equal(t, "hi", m.Content)
	require.Equal(t, "author", m.Creator)
	require.EqualValues(t, 100, m.Created)

	// replayed reaction adds converge on one entry
	addReaction := &Op{
		Kind: events.KindReactionPatch, CardID: "c1",
		Payload: []byte(`{"cardId":"c1","messageId":"m1","reaction":{"op":"add","reaction":"👍","person":"p1"}}`),
	}
	outcome, err = Apply(addReaction)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	outcome, err = Apply(addReaction)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)

	m, err = store.GetMessage("c1", "m1")
	require.NoError(t, err)
	require.Len(t, m.Reactions["👍"], 1)

	outcome, err = Apply(&Op{
		Kind:    events.KindRemovePatch,
		CardID:  "c1",
		Payload: []byte(`{"cardId":"c1","messageId":"m1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeTombstone, outcome)

	_, err = store.GetMessage("c1", "m1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestApply_ContextLifecycle(t *testing.T) {
	openTestStore(t)

	outcome, err := Apply(&Op{
		Kind: events.KindContextCreate, CardID: "acc", ID: "ctx1",
		Payload: []byte(`{"kind":"notificationContext.create","cardId":"c1","account":"acc","lastView":10}`),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = Apply(&Op{
		Kind:   events.KindContextUpdate,
		CardID: "acc",
		Payload: []byte(
			`{"kind":"notificationContext.update","contextId":"ctx1","account":"acc","lastView":30}`),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	c, err := store.GetContext("acc", "ctx1")
	require.NoError(t, err)
	require.EqualValues(t, 30, c.LastView)

	// mismatched context id is silently ignored
	outcome, err = Apply(&Op{
		Kind:   events.KindContextUpdate,
		CardID: "acc",
		Payload: []byte(
			`{"kind":"notificationContext.update","contextId":"other","account":"acc","lastView":99}`),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)

	outcome, err = Apply(&Op{
		Kind:   events.KindContextRemove,
		CardID: "acc",
		Payload: []byte(
			`{"kind":"notificationContext.remove","contextId":"ctx1","account":"acc"}`),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeTombstone, outcome)

	_, err = store.GetContext("acc", "ctx1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessor_StopBeforeStoreClose(t *testing.T) {
	openTestStore(t)

	q := NewQueue(16)
	p := NewProcessor(q, 2)
	p.Start()
	require.NoError(t, q.EnqueueOp(events.KindMessageCreate, "c1", "m1",
		[]byte(`{"kind":"message.create","cardId":"c1","content":"x"}`), 10, nil))
	p.Stop()

	// Stop joins the depth monitor, so tearing the store down right after
	// must not race a metrics read.
	require.NoError(t, store.Close())
	require.Zero(t, store.GetPebbleMetrics())
}

func TestProcessor_EndToEnd(t *testing.T) {
	openTestStore(t)

	q := NewQueue(128)
	p := NewProcessor(q, 4)
	p.Start()

	require.NoError(t, q.EnqueueOp(events.KindMessageCreate, "c1", "m1",
		[]byte(`{"kind":"message.create","cardId":"c1","content":"first"}`), 10, nil))
	require.NoError(t, q.EnqueueOp(events.KindReactionPatch, "c1", "m1",
		[]byte(`{"cardId":"c1","messageId":"m1","reaction":{"op":"add","reaction":"🎉","person":"p1"}}`), 20, nil))
	require.NoError(t, q.EnqueueOp(events.KindNotificationCreate, "ctx1", "n1",
		[]byte(`{"kind":"notification.create","cardId":"c1","contextId":"ctx1","account":"acc","type":"mention"}`), 30, nil))

	p.Stop()

	m, err := store.GetMessage("c1", "m1")
	require.NoError(t, err)
	require.Equal(t, "first", m.Content)
	require.Len(t, m.Reactions["🎉"], 1)

	ntfs, err := store.ListNotifications("ctx1")
	require.NoError(t, err)
	require.Len(t, ntfs, 1)
	require.Equal(t, "mention", ntfs[0].Type)
}
