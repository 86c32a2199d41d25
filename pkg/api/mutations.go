package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"cardstate/pkg/events"
	"cardstate/pkg/ident"
	"cardstate/pkg/ingest"
	"cardstate/pkg/telemetry"
	"cardstate/pkg/utils"
)

// Mutative HTTP handlers live in this file. They are thin fast-path
// handlers which enqueue raw event payloads into the global ingest queue
// and return 202. Heavy work (reducing, persistence) happens inside the
// ingest pipeline.

// MutationsHandler routes the write-side endpoints:
//
//	POST   /v1/cards/{cardID}/messages                create message
//	POST   /v1/cards/{cardID}/messages/{id}/patches   apply patch (kind in body)
//	DELETE /v1/cards/{cardID}/messages/{id}           remove message
//	POST   /v1/notifications                          create notification
//	POST   /v1/contexts                               create notification context
//	PATCH  /v1/contexts/{id}                          update context counters
//	DELETE /v1/contexts/{id}                          remove context
func MutationsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		seg := splitSegments(string(ctx.Path()))

		switch {
		case method == fasthttp.MethodGet && len(seg) == 1 && seg[0] == "healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			ctx.SetStatusCode(fasthttp.StatusOK)
			_, _ = ctx.WriteString(`{"status":"ok"}`)

		case len(seg) == 4 && seg[0] == "v1" && seg[1] == "cards" && seg[3] == "messages" &&
			method == fasthttp.MethodPost:
			createMessageFast(ctx, seg[2])

		case len(seg) == 6 && seg[0] == "v1" && seg[1] == "cards" && seg[3] == "messages" && seg[5] == "patches" &&
			method == fasthttp.MethodPost:
			patchMessageFast(ctx, seg[2], seg[4])

		case len(seg) == 5 && seg[0] == "v1" && seg[1] == "cards" && seg[3] == "messages" &&
			method == fasthttp.MethodDelete:
			removeMessageFast(ctx, seg[2], seg[4])

		case len(seg) == 2 && seg[0] == "v1" && seg[1] == "notifications" &&
			method == fasthttp.MethodPost:
			createNotificationFast(ctx)

		case len(seg) == 2 && seg[0] == "v1" && seg[1] == "contexts" &&
			method == fasthttp.MethodPost:
			createContextFast(ctx)

		case len(seg) == 3 && seg[0] == "v1" && seg[1] == "contexts" &&
			method == fasthttp.MethodPatch:
			updateContextFast(ctx, seg[2])

		case len(seg) == 3 && seg[0] == "v1" && seg[1] == "contexts" &&
			method == fasthttp.MethodDelete:
			removeContextFast(ctx, seg[2])

		default:
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "no such endpoint")
		}
	}
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// headerExtras captures request metadata the pipeline may want downstream.
func headerExtras(ctx *fasthttp.RequestCtx) map[string]string {
	return map[string]string{
		"actor":   string(ctx.Request.Header.Peek("X-Actor")),
		"account": string(ctx.Request.Header.Peek("X-Account")),
		"reqid":   string(ctx.Request.Header.Peek("X-Request-Id")),
		"remote":  ctx.RemoteAddr().String(),
	}
}

// enqueue pushes one event and answers queue errors uniformly. Returns
// false when a response has already been written.
func enqueue(ctx *fasthttp.RequestCtx, kind events.Kind, scope, id string, payload []byte) bool {
	err := ingest.DefaultQueue.EnqueueOp(kind, scope, id, payload, time.Now().UTC().UnixNano(), headerExtras(ctx))
	if err != nil {
		if err == ingest.ErrQueueFull {
			telemetry.EventsRejected.WithLabelValues("queue_full").Inc()
			utils.JSONErrorFast(ctx, fasthttp.StatusTooManyRequests, "server busy; try again")
			return false
		}
		telemetry.EventsRejected.WithLabelValues("queue_closed").Inc()
		utils.JSONErrorFast(ctx, fasthttp.StatusServiceUnavailable, "enqueue failed")
		return false
	}
	telemetry.EventsTotal.WithLabelValues(string(kind)).Inc()
	return true
}

func createMessageFast(ctx *fasthttp.RequestCtx, cardID string) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	payload := append([]byte(nil), ctx.PostBody()...)
	id := ident.Generate()
	if !enqueue(ctx, events.KindMessageCreate, cardID, id, payload) {
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
	_ = json.NewEncoder(ctx).Encode(map[string]string{"id": id, "card": cardID})
}

func patchMessageFast(ctx *fasthttp.RequestCtx, cardID, id string) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	payload := append([]byte(nil), ctx.PostBody()...)
	kind, err := events.DecodeKind(payload)
	if err != nil {
		telemetry.EventsRejected.WithLabelValues("bad_payload").Inc()
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	if !kind.IsPatch() {
		telemetry.EventsRejected.WithLabelValues("bad_kind").Inc()
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("%q is not a patch kind", kind))
		return
	}
	if !enqueue(ctx, kind, cardID, id, payload) {
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
}

func removeMessageFast(ctx *fasthttp.RequestCtx, cardID, id string) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	payload := []byte(fmt.Sprintf(`{"cardId":%q,"messageId":%q}`, cardID, id))
	if !enqueue(ctx, events.KindRemovePatch, cardID, id, payload) {
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
}

func createNotificationFast(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	payload := append([]byte(nil), ctx.PostBody()...)
	var env struct {
		ContextID string `json:"contextId"`
	}
	if err := json.Unmarshal(payload, &env); err != nil || env.ContextID == "" {
		telemetry.EventsRejected.WithLabelValues("bad_payload").Inc()
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "contextId missing")
		return
	}
	id := ident.Generate()
	if !enqueue(ctx, events.KindNotificationCreate, env.ContextID, id, payload) {
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
	_ = json.NewEncoder(ctx).Encode(map[string]string{"id": id})
}

func createContextFast(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	payload := append([]byte(nil), ctx.PostBody()...)
	account := contextAccount(ctx, payload)
	if account == "" {
		telemetry.EventsRejected.WithLabelValues("bad_payload").Inc()
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "account missing")
		return
	}
	id := ident.Generate()
	if !enqueue(ctx, events.KindContextCreate, account, id, payload) {
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
	_ = json.NewEncoder(ctx).Encode(map[string]string{"id": id})
}

func updateContextFast(ctx *fasthttp.RequestCtx, id string) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	payload := append([]byte(nil), ctx.PostBody()...)
	account := contextAccount(ctx, payload)
	if account == "" {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "account missing")
		return
	}
	if !enqueue(ctx, events.KindContextUpdate, account, id, payload) {
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
}

func removeContextFast(ctx *fasthttp.RequestCtx, id string) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	account := contextAccount(ctx, nil)
	if account == "" {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "account missing")
		return
	}
	payload := []byte(fmt.Sprintf(`{"contextId":%q,"account":%q}`, id, account))
	if !enqueue(ctx, events.KindContextRemove, account, id, payload) {
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
}

// contextAccount resolves the owning account from the payload, falling
// back to the X-Account header.
func contextAccount(ctx *fasthttp.RequestCtx, payload []byte) string {
	if len(payload) > 0 {
		var env struct {
			Account string `json:"account"`
		}
		if err := json.Unmarshal(payload, &env); err == nil && env.Account != "" {
			return env.Account
		}
	}
	return string(ctx.Request.Header.Peek("X-Account"))
}
