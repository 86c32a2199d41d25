// Package events defines the inbound event union consumed by the reducers.
//
// Every event carries a Kind, the target entity's key fields and an optional
// date (unix nanoseconds; callers stamp receipt time when absent). Events
// are delivered as JSON; DecodeKind peeks the kind so dispatch can pick the
// concrete shape.
package events

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the concrete event shape. It doubles as the dispatch key
// for the ingest pipeline.
type Kind string

const (
	KindMessageCreate   Kind = "message.create"
	KindUpdatePatch     Kind = "message.updatePatch"
	KindRemovePatch     Kind = "message.removePatch"
	KindReactionPatch   Kind = "message.reactionPatch"
	KindAttachmentPatch Kind = "message.attachmentPatch"
	KindBlobPatch       Kind = "message.blobPatch"
	KindThreadPatch     Kind = "message.threadPatch"

	KindNotificationCreate Kind = "notification.create"

	KindContextCreate Kind = "notificationContext.create"
	KindContextUpdate Kind = "notificationContext.update"
	KindContextRemove Kind = "notificationContext.remove"
)

// PatchKinds lists the message patch kinds in dispatch order.
var PatchKinds = []Kind{
	KindUpdatePatch,
	KindRemovePatch,
	KindReactionPatch,
	KindAttachmentPatch,
	KindBlobPatch,
	KindThreadPatch,
}

// IsPatch reports whether k targets an existing message.
func (k Kind) IsPatch() bool {
	switch k {
	case KindUpdatePatch, KindRemovePatch, KindReactionPatch,
		KindAttachmentPatch, KindBlobPatch, KindThreadPatch:
		return true
	}
	return false
}

// Opcode names a sub-operation inside a patch event.
type Opcode string

const (
	OpAdd    Opcode = "add"
	OpRemove Opcode = "remove"
	OpSet    Opcode = "set"
	OpUpdate Opcode = "update"

	OpAttach      Opcode = "attach"
	OpDetach      Opcode = "detach"
	OpAddReply    Opcode = "addReply"
	OpRemoveReply Opcode = "removeReply"
)

// MessageCreate constructs a new message. MessageID may be empty; the
// caller supplies a fallback id in that case.
type MessageCreate struct {
	Kind      Kind                   `json:"kind"`
	CardID    string                 `json:"cardId"`
	MessageID string                 `json:"messageId,omitempty"`
	Type      string                 `json:"type,omitempty"`
	Content   string                 `json:"content,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Creator   string                 `json:"creator,omitempty"`
	Language  string                 `json:"language,omitempty"`
	Date      int64                  `json:"date,omitempty"`
}

// Patch is a message patch event of any patch kind. Exactly one of the
// operation payloads below is populated, matching Kind.
type Patch struct {
	Kind      Kind   `json:"kind"`
	CardID    string `json:"cardId"`
	MessageID string `json:"messageId"`
	Actor     string `json:"actor,omitempty"`
	Date      int64  `json:"date,omitempty"`

	Update      *UpdateOp      `json:"update,omitempty"`
	Reaction    *ReactionOp    `json:"reaction,omitempty"`
	Attachments []AttachmentOp `json:"attachments,omitempty"`
	Blobs       []BlobOp       `json:"blobs,omitempty"`
	Thread      *ThreadOp      `json:"thread,omitempty"`
}

// UpdateOp merges content-affecting fields. Pointer fields distinguish
// "absent" from "set to empty".
type UpdateOp struct {
	Type     string                 `json:"type,omitempty"`
	Content  *string                `json:"content,omitempty"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
	Language *string                `json:"language,omitempty"`
}

// ReactionOp adds or removes one (person, emoji) pair.
type ReactionOp struct {
	Opcode   Opcode `json:"op"`
	Reaction string `json:"reaction"`
	Person   string `json:"person"`
}

// AttachmentOp is one attachment sub-operation. Attachments is used by
// add/set/update; IDs by remove.
type AttachmentOp struct {
	Opcode      Opcode           `json:"op"`
	Attachments []AttachmentSpec `json:"attachments,omitempty"`
	IDs         []string         `json:"ids,omitempty"`
}

// AttachmentSpec describes an attachment inside an AttachmentOp.
type AttachmentSpec struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// BlobOp is a blob-centric sub-operation; the reducer translates it into
// the equivalent attachment operation. Blobs is used by
// attach/set/update; BlobIDs by detach.
type BlobOp struct {
	Opcode  Opcode     `json:"op"`
	Blobs   []BlobSpec `json:"blobs,omitempty"`
	BlobIDs []string   `json:"blobIds,omitempty"`
}

// BlobSpec describes a stored blob; the blob id doubles as the attachment
// id.
type BlobSpec struct {
	ID       string                 `json:"id"`
	MimeType string                 `json:"mimeType,omitempty"`
	FileName string                 `json:"fileName,omitempty"`
	Size     int64                  `json:"size,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ThreadOp mutates one thread link on the message.
type ThreadOp struct {
	Opcode     Opcode `json:"op"`
	ThreadID   string `json:"threadId"`
	ThreadType string `json:"threadType,omitempty"`
	Person     string `json:"person,omitempty"`
}

// NotificationCreate constructs a notification; notifications are immutable
// afterwards.
type NotificationCreate struct {
	Kind           Kind                   `json:"kind"`
	NotificationID string                 `json:"notificationId,omitempty"`
	CardID         string                 `json:"cardId"`
	ContextID      string                 `json:"contextId"`
	Account        string                 `json:"account"`
	Type           string                 `json:"type,omitempty"`
	Read           bool                   `json:"read,omitempty"`
	Content        map[string]interface{} `json:"content,omitempty"`
	MessageID      string                 `json:"messageId,omitempty"`
	Creator        string                 `json:"creator,omitempty"`
	BlobID         string                 `json:"blobId,omitempty"`
	Date           int64                  `json:"date,omitempty"`
}

// ContextCreate constructs a notification context.
type ContextCreate struct {
	Kind       Kind   `json:"kind"`
	ContextID  string `json:"contextId,omitempty"`
	CardID     string `json:"cardId"`
	Account    string `json:"account"`
	LastView   int64  `json:"lastView,omitempty"`
	LastUpdate int64  `json:"lastUpdate,omitempty"`
	LastNotify int64  `json:"lastNotify,omitempty"`
	Date       int64  `json:"date,omitempty"`
}

// ContextUpdate merges the last* counters of a context. Zero means absent.
type ContextUpdate struct {
	Kind       Kind   `json:"kind"`
	ContextID  string `json:"contextId"`
	Account    string `json:"account"`
	LastView   int64  `json:"lastView,omitempty"`
	LastUpdate int64  `json:"lastUpdate,omitempty"`
	LastNotify int64  `json:"lastNotify,omitempty"`
	Date       int64  `json:"date,omitempty"`
}

// ContextRemove tombstones a context.
type ContextRemove struct {
	Kind      Kind   `json:"kind"`
	ContextID string `json:"contextId"`
	Account   string `json:"account"`
	Date      int64  `json:"date,omitempty"`
}

// DecodeKind peeks the kind field of a raw event payload.
func DecodeKind(payload []byte) (Kind, error) {
	var env struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("invalid event json: %w", err)
	}
	if env.Kind == "" {
		return "", fmt.Errorf("event kind missing")
	}
	return env.Kind, nil
}
