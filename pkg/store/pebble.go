package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"cardstate/pkg/logger"
	"cardstate/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = pebble.ErrNotFound

var errNotOpen = errors.New("pebble not opened; call store.Open first")

// Key layout:
//
//	card:<cardID>:msg:<msgID>       -> models.Message JSON
//	account:<account>:ctx:<ctxID>   -> models.NotificationContext JSON
//	ctx:<ctxID>:ntf:<ntfID>         -> models.Notification JSON
//
// Message and notification ids are generated sortable (see pkg/ident), so
// prefix iteration yields entities in creation order.
func msgKey(cardID, msgID string) []byte {
	return []byte("card:" + cardID + ":msg:" + msgID)
}

func ctxKey(account, ctxID string) []byte {
	return []byte("account:" + account + ":ctx:" + ctxID)
}

func ntfKey(ctxID, ntfID string) []byte {
	return []byte("ctx:" + ctxID + ":ntf:" + ntfID)
}

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// SaveMessage writes the message snapshot under its card. The message must
// carry both its own id and its card id.
func SaveMessage(m *models.Message) error {
	if db == nil {
		return errNotOpen
	}
	if m == nil || m.ID == "" || m.CardID == "" {
		return fmt.Errorf("message requires id and card id")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	key := msgKey(m.CardID, m.ID)
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "card", m.CardID, "msg", m.ID, "error", err)
		return err
	}
	logger.Debug("message_saved", "card", m.CardID, "msg", m.ID)
	return nil
}

// GetMessage loads one message snapshot, or ErrNotFound.
func GetMessage(cardID, msgID string) (*models.Message, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(msgKey(cardID, msgID))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("invalid message JSON: %w", err)
	}
	return &m, nil
}

// DeleteMessage removes a message snapshot. Deleting an absent message is
// not an error; remove patches are idempotent.
func DeleteMessage(cardID, msgID string) error {
	if db == nil {
		return errNotOpen
	}
	if err := db.Delete(msgKey(cardID, msgID), pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "card", cardID, "msg", msgID, "error", err)
		return err
	}
	logger.Debug("message_deleted", "card", cardID, "msg", msgID)
	return nil
}

// ListMessages returns all messages for a card in creation order. An
// optional limit caps the result.
func ListMessages(cardID string, limit ...int) ([]*models.Message, error) {
	if db == nil {
		return nil, errNotOpen
	}
	max := -1
	if len(limit) > 0 {
		max = limit[0]
	}
	prefix := msgKey(cardID, "")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, &m)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, iter.Error()
}

// SaveContext writes a per-account notification context.
func SaveContext(c *models.NotificationContext) error {
	if db == nil {
		return errNotOpen
	}
	if c == nil || c.ID == "" || c.Account == "" {
		return fmt.Errorf("context requires id and account")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := db.Set(ctxKey(c.Account, c.ID), data, pebble.Sync); err != nil {
		logger.Error("save_context_failed", "account", c.Account, "ctx", c.ID, "error", err)
		return err
	}
	logger.Debug("context_saved", "account", c.Account, "ctx", c.ID)
	return nil
}

// GetContext loads one notification context, or ErrNotFound.
func GetContext(account, ctxID string) (*models.NotificationContext, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, closer, err := db.Get(ctxKey(account, ctxID))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var c models.NotificationContext
	if err := json.Unmarshal(v, &c); err != nil {
		return nil, fmt.Errorf("invalid context JSON: %w", err)
	}
	return &c, nil
}

// DeleteContext removes a notification context and all notifications filed
// under it.
func DeleteContext(account, ctxID string) error {
	if db == nil {
		return errNotOpen
	}
	if err := db.Delete(ctxKey(account, ctxID), pebble.Sync); err != nil {
		logger.Error("delete_context_failed", "account", account, "ctx", ctxID, "error", err)
		return err
	}
	prefix := ntfKey(ctxID, "")
	end := append(append([]byte(nil), prefix...), 0xff)
	if err := db.DeleteRange(prefix, end, pebble.Sync); err != nil {
		logger.Error("delete_context_notifications_failed", "ctx", ctxID, "error", err)
		return err
	}
	logger.Debug("context_deleted", "account", account, "ctx", ctxID)
	return nil
}

// ListContexts returns all notification contexts for an account.
func ListContexts(account string) ([]*models.NotificationContext, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := ctxKey(account, "")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.NotificationContext
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var c models.NotificationContext
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("invalid context JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, &c)
	}
	return out, iter.Error()
}

// SaveNotification files a notification under its context.
func SaveNotification(n *models.Notification) error {
	if db == nil {
		return errNotOpen
	}
	if n == nil || n.ID == "" || n.ContextID == "" {
		return fmt.Errorf("notification requires id and context id")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := db.Set(ntfKey(n.ContextID, n.ID), data, pebble.Sync); err != nil {
		logger.Error("save_notification_failed", "ctx", n.ContextID, "ntf", n.ID, "error", err)
		return err
	}
	logger.Debug("notification_saved", "ctx", n.ContextID, "ntf", n.ID)
	return nil
}

// DeleteNotification removes one notification.
func DeleteNotification(ctxID, ntfID string) error {
	if db == nil {
		return errNotOpen
	}
	return db.Delete(ntfKey(ctxID, ntfID), pebble.Sync)
}

// ListNotifications returns notifications filed under a context in creation
// order. An optional limit caps the result.
func ListNotifications(ctxID string, limit ...int) ([]*models.Notification, error) {
	if db == nil {
		return nil, errNotOpen
	}
	max := -1
	if len(limit) > 0 {
		max = limit[0]
	}
	prefix := ntfKey(ctxID, "")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.Notification
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			return nil, fmt.Errorf("invalid notification JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, &n)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, iter.Error()
}

// PurgeReadNotificationsBefore deletes read notifications created before the
// cutoff (unix nanoseconds) across all contexts and returns how many were
// removed. Used by the retention job.
func PurgeReadNotificationsBefore(cutoff int64) (int, error) {
	if db == nil {
		return 0, errNotOpen
	}
	prefix := []byte("ctx:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	var victims [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			continue
		}
		if n.Read && n.Created < cutoff {
			victims = append(victims, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	for _, k := range victims {
		if err := db.Delete(k, pebble.Sync); err != nil {
			return 0, err
		}
	}
	if len(victims) > 0 {
		logger.Info("notifications_purged", "count", len(victims))
	}
	return len(victims), nil
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, errNotOpen
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(iter.Key()))
		}
	} else {
		pfx := []byte(prefix)
		for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Key(), pfx) {
				break
			}
			out = append(out, string(iter.Key()))
		}
	}
	return out, iter.Error()
}
