package models

import "strings"

// LinkPreviewType is the reserved attachment type for unfurled link previews.
const LinkPreviewType = "application/vnd.cardstate.link-preview"

// appletTypePrefix is the reserved namespace for embedded applet attachments.
const appletTypePrefix = "application/vnd.cardstate.applet."

// Attachment is a file, link preview or applet attached to a message.
type Attachment struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	// Params is an opaque per-type parameter bag (file name, size, preview
	// metadata, applet state, ...).
	Params   map[string]interface{} `json:"params,omitempty"`
	Creator  string                 `json:"creator,omitempty"`
	Created  int64                  `json:"created"`
	Modified int64                  `json:"modified,omitempty"`
}

// IsLinkPreview reports whether typ is the reserved link-preview type.
func IsLinkPreview(typ string) bool {
	return typ == LinkPreviewType
}

// IsApplet reports whether typ is in the reserved applet namespace.
func IsApplet(typ string) bool {
	return strings.HasPrefix(typ, appletTypePrefix)
}

// IsBlob reports whether typ is a plain stored blob, i.e. neither a link
// preview nor an applet.
func IsBlob(typ string) bool {
	return !IsLinkPreview(typ) && !IsApplet(typ)
}
