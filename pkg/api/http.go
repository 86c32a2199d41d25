package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"cardstate/pkg/logger"
	"cardstate/pkg/models"
	"cardstate/pkg/store"
	"cardstate/pkg/utils"
)

// Handler returns the read-side HTTP handler. All writes go through the
// mutation surface (see mutations.go); these endpoints only serve reduced
// snapshots.
func Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/cards/{cardID}/messages", listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/cards/{cardID}/messages/{id}", getMessage).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{account}/contexts", listContexts).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{account}/contexts/{id}", getContext).Methods(http.MethodGet)
	v1.HandleFunc("/contexts/{ctxID}/notifications", listNotifications).Methods(http.MethodGet)
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// queryLimit parses an optional positive ?limit= value; 0 means no limit.
func queryLimit(r *http.Request) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	cardID := mux.Vars(r)["cardID"]
	var (
		msgs []*models.Message
		err  error
	)
	if lim := queryLimit(r); lim > 0 {
		msgs, err = store.ListMessages(cardID, lim)
	} else {
		msgs, err = store.ListMessages(cardID)
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	logger.Debug("messages_list", "card", cardID, "count", len(msgs))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Card     string            `json:"card"`
		Messages []*models.Message `json:"messages"`
	}{Card: cardID, Messages: msgs})
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m, err := store.GetMessage(vars["cardID"], vars["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func listContexts(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	ctxs, err := store.ListContexts(account)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ctxs == nil {
		ctxs = []*models.NotificationContext{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Account  string                        `json:"account"`
		Contexts []*models.NotificationContext `json:"contexts"`
	}{Account: account, Contexts: ctxs})
}

// getContext returns one context; ?notifications=<n> embeds the first n
// notifications plus the total count.
func getContext(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := store.GetContext(vars["account"], vars["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "context not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s := r.URL.Query().Get("notifications"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid notifications count")
			return
		}
		all, err := store.ListNotifications(c.ID)
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		list := &models.NotificationList{Total: len(all)}
		if n > len(all) {
			n = len(all)
		}
		for _, ntf := range all[:n] {
			list.Items = append(list.Items, *ntf)
		}
		c.Notifications = list
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func listNotifications(w http.ResponseWriter, r *http.Request) {
	ctxID := mux.Vars(r)["ctxID"]
	var (
		ntfs []*models.Notification
		err  error
	)
	if lim := queryLimit(r); lim > 0 {
		ntfs, err = store.ListNotifications(ctxID, lim)
	} else {
		ntfs, err = store.ListNotifications(ctxID)
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ntfs == nil {
		ntfs = []*models.Notification{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Context       string                 `json:"context"`
		Notifications []*models.Notification `json:"notifications"`
	}{Context: ctxID, Notifications: ntfs})
}
