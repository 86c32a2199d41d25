package reducer

import (
	"cardstate/pkg/events"
	"cardstate/pkg/models"
)

// applyAttachments folds a sequence of attachment sub-operations into the
// message. Operations apply in order; the original snapshot is returned
// untouched when none of them changed anything.
func applyAttachments(m *models.Message, ops []events.AttachmentOp, p *events.Patch) *models.Message {
	atts := m.Attachments
	changed := false
	for _, op := range ops {
		switch op.Opcode {
		case events.OpAdd:
			if len(op.Attachments) == 0 {
				continue
			}
			atts = upsertAttachments(atts, op.Attachments, p)
			changed = true
		case events.OpRemove:
			next, removed := removeAttachments(atts, op.IDs)
			if removed {
				atts = next
				changed = true
			}
		case events.OpSet:
			// An empty set preserves the existing attachments rather than
			// clearing them.
			if len(op.Attachments) == 0 {
				continue
			}
			atts = upsertAttachments(nil, op.Attachments, p)
			changed = true
		case events.OpUpdate:
			next, updated := updateAttachments(atts, op.Attachments, p)
			if updated {
				atts = next
				changed = true
			}
		}
	}
	if !changed {
		return m
	}
	next := shallowCopy(m)
	next.Attachments = atts
	return next
}

// applyBlobs translates blob-centric operations into the equivalent
// attachment operations and delegates.
func applyBlobs(m *models.Message, p *events.Patch) *models.Message {
	ops := make([]events.AttachmentOp, 0, len(p.Blobs))
	for _, b := range p.Blobs {
		switch b.Opcode {
		case events.OpAttach:
			ops = append(ops, events.AttachmentOp{Opcode: events.OpAdd, Attachments: blobSpecs(b.Blobs)})
		case events.OpDetach:
			ops = append(ops, events.AttachmentOp{Opcode: events.OpRemove, IDs: b.BlobIDs})
		case events.OpSet:
			ops = append(ops, events.AttachmentOp{Opcode: events.OpSet, Attachments: blobSpecs(b.Blobs)})
		case events.OpUpdate:
			ops = append(ops, events.AttachmentOp{Opcode: events.OpUpdate, Attachments: blobSpecs(b.Blobs)})
		}
	}
	return applyAttachments(m, ops, p)
}

func blobSpecs(blobs []events.BlobSpec) []events.AttachmentSpec {
	out := make([]events.AttachmentSpec, 0, len(blobs))
	for _, b := range blobs {
		params := make(map[string]interface{}, len(b.Metadata)+2)
		for k, v := range b.Metadata {
			params[k] = v
		}
		if b.FileName != "" {
			params["fileName"] = b.FileName
		}
		if b.Size != 0 {
			params["size"] = b.Size
		}
		out = append(out, events.AttachmentSpec{ID: b.ID, Type: b.MimeType, Params: params})
	}
	return out
}

// upsertAttachments appends the given specs to base, stamping creator and
// created from the patch. A spec whose id is already present replaces the
// existing attachment, keeping the id-uniqueness invariant.
func upsertAttachments(base []models.Attachment, specs []events.AttachmentSpec, p *events.Patch) []models.Attachment {
	out := append([]models.Attachment(nil), base...)
	for _, s := range specs {
		a := models.Attachment{
			ID:      s.ID,
			Type:    s.Type,
			Params:  s.Params,
			Creator: p.Actor,
			Created: p.Date,
		}
		replaced := false
		for i := range out {
			if out[i].ID == s.ID {
				out[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

// removeAttachments filters out the given ids. The second return value is
// false when nothing matched.
func removeAttachments(base []models.Attachment, ids []string) ([]models.Attachment, bool) {
	if len(ids) == 0 {
		return base, false
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]models.Attachment, 0, len(base))
	for _, a := range base {
		if _, ok := drop[a.ID]; !ok {
			out = append(out, a)
		}
	}
	if len(out) == len(base) {
		return base, false
	}
	return out, true
}

// updateAttachments merges params field-by-field per attachment id. The
// attachment's modified stamp only advances when the patch date is strictly
// later than the current one.
func updateAttachments(base []models.Attachment, specs []events.AttachmentSpec, p *events.Patch) ([]models.Attachment, bool) {
	updated := false
	out := append([]models.Attachment(nil), base...)
	for _, s := range specs {
		for i := range out {
			if out[i].ID != s.ID {
				continue
			}
			params := make(map[string]interface{}, len(out[i].Params)+len(s.Params))
			for k, v := range out[i].Params {
				params[k] = v
			}
			for k, v := range s.Params {
				params[k] = v
			}
			out[i].Params = params
			if p.Date > out[i].Modified {
				out[i].Modified = p.Date
			}
			updated = true
			break
		}
	}
	if !updated {
		return base, false
	}
	return out, true
}
