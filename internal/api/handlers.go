package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lucaslui/minermonitor/internal/alerting"
	"github.com/lucaslui/minermonitor/internal/bridge"
	"github.com/lucaslui/minermonitor/internal/command"
	"github.com/lucaslui/minermonitor/internal/history"
	"github.com/lucaslui/minermonitor/internal/hub"
	"github.com/lucaslui/minermonitor/internal/livestore"
	"github.com/lucaslui/minermonitor/internal/model"
)

type Handler struct {
	monitor  *alerting.Monitor
	live     livestore.Store
	syncer   *bridge.Syncer
	resetter *command.Resetter
	reader   *history.Reader
	hub      *hub.Hub
	logger   *log.Logger
}

type Deps struct {
	Monitor  *alerting.Monitor
	Live     livestore.Store
	Syncer   *bridge.Syncer
	Resetter *command.Resetter
	Reader   *history.Reader
	Hub      *hub.Hub
	Logger   *log.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		monitor:  d.Monitor,
		live:     d.Live,
		syncer:   d.Syncer,
		resetter: d.Resetter,
		reader:   d.Reader,
		hub:      d.Hub,
		logger:   d.Logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.View())
}

func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	a, ok, err := h.monitor.Dismiss(r.Context())
	if err != nil {
		h.fail(w, "dismiss", err)
		return
	}
	resp := map[string]any{"dismissed": ok}
	if ok {
		resp["alert"] = a
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListHelmets(w http.ResponseWriter, r *http.Request) {
	ids, err := livestore.Helmets(r.Context(), h.live)
	if err != nil {
		h.fail(w, "list helmets", model.StoreError("read", livestore.Root, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"helmets": ids})
}

func (h *Handler) ResetEmergency(w http.ResponseWriter, r *http.Request) {
	id := helmetID(r)
	// Once started, the three writes run to completion or failure even if the client leaves.
	if err := h.resetter.Reset(context.WithoutCancel(r.Context()), id); err != nil {
		h.fail(w, "reset "+string(id), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"helmetId": id, "reset": true})
}

func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	id := helmetID(r)
	res, err := h.syncer.Sync(context.WithoutCancel(r.Context()), id)
	if err != nil {
		var storeErr *model.TransientStoreError
		if errors.As(err, &storeErr) {
			h.logger.Printf("[http] sync %s failed after %d records: %v", id, res.Written, err)
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": res})
			return
		}
		h.fail(w, "sync "+string(id), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := helmetID(r)
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	hour := r.URL.Query().Get("hour")

	var (
		recs []model.HistoryRecord
		err  error
	)
	if hour == "" {
		recs, err = h.reader.Day(r.Context(), id, date)
	} else {
		if !validHour(hour) {
			writeError(w, http.StatusBadRequest, "hour must be 00-23")
			return
		}
		recs, err = h.reader.Hour(r.Context(), id, date, hour)
	}
	if err != nil {
		h.fail(w, "history "+string(id), err)
		return
	}
	if recs == nil {
		recs = []model.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"helmetId": id,
		"date":     date,
		"hour":     hour,
		"records":  recs,
	})
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := helmetID(r)
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	recs, err := h.reader.Day(r.Context(), id, date)
	if err != nil {
		h.fail(w, "summary "+string(id), err)
		return
	}
	writeJSON(w, http.StatusOK, history.Summarize(date, recs))
}

func helmetID(r *http.Request) model.HelmetID {
	return model.HelmetID(strings.TrimSpace(chi.URLParam(r, "id")))
}

func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

func validHour(h string) bool {
	if len(h) != 2 {
		return false
	}
	t, err := time.Parse("15", h)
	return err == nil && t.Format("15") == h
}

// fail maps the error taxonomy onto status codes.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	var (
		storeErr   *model.TransientStoreError
		partialErr *model.PartialCommandError
	)
	switch {
	case errors.Is(err, model.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, alerting.ErrNotRunning):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &partialErr), errors.As(err, &storeErr):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.logger.Printf("[http] %s: %v", op, err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
