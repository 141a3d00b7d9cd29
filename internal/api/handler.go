// Package api exposes the layout service's client surface: REST requests for
// group and tab operations, and a websocket stream pushing membership events.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/pkg/faults"
	"github.com/pjbroadbent/layouts-service/pkg/models"
)

// Handler serves the client API over an engine.
type Handler struct {
	engine *engine.Engine
	logger *logrus.Logger
	tracer trace.Tracer
	events *EventHub
}

// NewHandler builds a handler over the engine. The event hub may be nil when
// no push channel is wanted.
func NewHandler(eng *engine.Engine, events *EventHub, logger *logrus.Logger) *Handler {
	return &Handler{
		engine: eng,
		logger: logger,
		tracer: otel.Tracer("api.layout_handler"),
		events: events,
	}
}

// RegisterRoutes registers the client API routes.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/windows/{uuid}/{name}", h.GetWindowInfo).Methods("GET")
	router.HandleFunc("/windows/{uuid}/{name}/undock", h.Undock).Methods("POST")
	router.HandleFunc("/windows/{uuid}/{name}/explode", h.ExplodeGroup).Methods("POST")
	router.HandleFunc("/windows/{uuid}/{name}/tabs", h.GetTabs).Methods("GET")
	router.HandleFunc("/windows/{uuid}/{name}/tabs", h.RemoveTab).Methods("DELETE")
	router.HandleFunc("/windows/{uuid}/{name}/activate", h.SetActiveTab).Methods("POST")

	router.HandleFunc("/tabgroups", h.CreateTabGroup).Methods("POST")
	router.HandleFunc("/tabgroups/{id}/tabs", h.AddTab).Methods("POST")
	router.HandleFunc("/tabgroups/{id}/switch", h.SwitchTab).Methods("POST")

	router.HandleFunc("/layout/save", h.GetSaveInfo).Methods("GET")
	router.HandleFunc("/layout/restore", h.Restore).Methods("POST")

	if h.events != nil {
		router.HandleFunc("/events", h.events.Serve).Methods("GET")
	}
}

func windowID(r *http.Request) models.WindowID {
	vars := mux.Vars(r)
	return models.WindowID{UUID: vars["uuid"], Name: vars["name"]}
}

// GetWindowInfo reports a window's group membership.
func (h *Handler) GetWindowInfo(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.GetWindowInfo")
	defer span.End()

	info, err := h.engine.Info(windowID(r))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, info)
}

// Undock pulls a window out of its snap group.
func (h *Handler) Undock(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.Undock")
	defer span.End()

	if err := h.engine.Undock(windowID(r)); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ExplodeGroup dissolves a window's snap group.
func (h *Handler) ExplodeGroup(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.ExplodeGroup")
	defer span.End()

	if err := h.engine.ExplodeGroup(windowID(r)); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetTabs lists the tabs of a window's tab group.
func (h *Handler) GetTabs(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.GetTabs")
	defer span.End()

	tabs, err := h.engine.GetTabs(windowID(r))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"tabs": tabs})
}

type createTabGroupRequest struct {
	Windows []models.WindowID `json:"windows"`
}

// CreateTabGroup tabs a list of windows together.
func (h *Handler) CreateTabGroup(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.CreateTabGroup")
	defer span.End()

	var req createTabGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody("BadRequest", err.Error()))
		return
	}
	id, err := h.engine.CreateTabGroup(req.Windows)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, map[string]int{"tabGroup": id})
}

type tabRequest struct {
	Window models.WindowID `json:"window"`
}

// AddTab appends a window to a tab group.
func (h *Handler) AddTab(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.AddTab")
	defer span.End()

	groupID, ok := tabGroupID(r)
	if !ok {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody("BadRequest", "invalid tab group id"))
		return
	}
	var req tabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody("BadRequest", err.Error()))
		return
	}
	if err := h.engine.AddTab(groupID, req.Window); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RemoveTab detaches a window from its tab group.
func (h *Handler) RemoveTab(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.RemoveTab")
	defer span.End()

	if err := h.engine.RemoveTab(windowID(r)); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SwitchTab activates a tab within a group.
func (h *Handler) SwitchTab(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.SwitchTab")
	defer span.End()

	groupID, ok := tabGroupID(r)
	if !ok {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody("BadRequest", "invalid tab group id"))
		return
	}
	var req tabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody("BadRequest", err.Error()))
		return
	}
	if err := h.engine.SwitchTab(groupID, req.Window); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetActiveTab activates a window within its tab group.
func (h *Handler) SetActiveTab(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.SetActiveTab")
	defer span.End()

	if err := h.engine.SetActiveTab(windowID(r)); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetSaveInfo serializes the current tab layout.
func (h *Handler) GetSaveInfo(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.GetSaveInfo")
	defer span.End()

	h.respondWithJSON(w, http.StatusOK, h.engine.GetSaveInfo())
}

// Restore rebuilds tab groups from a save blob.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "api.Restore")
	defer span.End()

	var blob models.SaveBlob
	if err := json.NewDecoder(r.Body).Decode(&blob); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody("BadRequest", err.Error()))
		return
	}
	if err := h.engine.Restore(blob); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func tabGroupID(r *http.Request) (int, bool) {
	var id int
	vars := mux.Vars(r)
	for _, c := range vars["id"] {
		if c < '0' || c > '9' {
			return 0, false
		}
		id = id*10 + int(c-'0')
	}
	if vars["id"] == "" {
		return 0, false
	}
	return id, true
}

func errorBody(kind, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]string{
			"kind":      kind,
			"message":   message,
			"requestId": uuid.NewString(),
		},
	}
}

// respondWithError maps error kinds to structured failures and HTTP codes.
func (h *Handler) respondWithError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, faults.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, faults.ErrInvalidScope), errors.Is(err, faults.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, faults.ErrDisabled):
		status = http.StatusForbidden
	case errors.Is(err, faults.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, faults.ErrRuntimeFailure):
		status = http.StatusBadGateway
	}
	h.logger.WithError(err).WithField("status", status).Debug("Client request failed")
	h.respondWithJSON(w, status, errorBody(faults.Kind(err), err.Error()))
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode API response")
	}
}
