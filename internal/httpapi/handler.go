// Package httpapi exposes registered entities over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/logger"
	"github.com/rpattn/restfilter/internal/service"
)

const (
	messageCreated = "record created"
	messageUpdated = "record updated"
	messageDeleted = "record deleted"
)

type Handler struct {
	service *service.Service
	mux     *http.ServeMux
}

type messageResponse struct {
	Message string `json:"message"`
}

// NewHTTPHandler routes the CRUD endpoints of every registered entity.
func NewHTTPHandler(svc *service.Service) http.Handler {
	h := &Handler{service: svc, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/{entity}", h.handleIndex)
	h.mux.HandleFunc("POST /api/{entity}", h.handleCreate)
	h.mux.HandleFunc("GET /api/{entity}/{id}", h.handleShow)
	h.mux.HandleFunc("PUT /api/{entity}/{id}", h.handleUpdate)
	h.mux.HandleFunc("DELETE /api/{entity}/{id}", h.handleDelete)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	params := domain.ParamsFromQuery(r.URL.Query())
	result, err := h.service.Get(r.Context(), r.PathValue("entity"), nil, params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	var relations []string
	if raw := r.URL.Query().Get("with"); raw != "" {
		relations = strings.Split(raw, ",")
	}
	row, err := h.service.Find(r.Context(), r.PathValue("entity"), r.PathValue("id"), relations)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Create(r.Context(), r.PathValue("entity"), payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: messageCreated})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Update(r.Context(), r.PathValue("entity"), r.PathValue("id"), payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: messageUpdated})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("entity"), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: messageDeleted})
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (domain.Record, bool) {
	var payload domain.Record
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: fmt.Sprintf("invalid payload: %v", err)})
		return nil, false
	}
	for key, value := range payload {
		if number, ok := value.(json.Number); ok {
			payload[key] = number.String()
		}
	}
	return payload, true
}

// writeError maps unknown entities and missing records to 404. Everything
// else is a store failure.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownEntity), errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, messageResponse{Message: err.Error()})
	default:
		logger.FromContext(r.Context()).Error().Err(err).Str("entity", r.PathValue("entity")).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
