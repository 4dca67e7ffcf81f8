package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/bridge-tracker/pkg/app/errors"
	apphttp "github.com/chainsafe/bridge-tracker/pkg/app/http"
	"github.com/chainsafe/bridge-tracker/pkg/tracker"
)

const maxBodySize = 1 << 20

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the tracker endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Get("/transfers", apphttp.HandleError(h.listTransfers, logger))
	r.Post("/transfers", apphttp.HandleError(h.addPending, logger))
	r.Get("/transfers/new", apphttp.HandleError(h.newTransfers, logger))
	r.Delete("/transfers/pending", apphttp.HandleError(h.clearPending, logger))
	r.Get("/transfers/{id}", apphttp.HandleError(h.getTransfer, logger))
	r.Post("/backfill", apphttp.HandleError(h.backfill, logger))
	r.Post("/refresh", apphttp.HandleError(h.refresh, logger))
	r.Get("/seen", apphttp.HandleError(h.getSeen, logger))
	r.Post("/seen", apphttp.HandleError(h.markSeen, logger))
}

func (h *HTTP) listTransfers(w http.ResponseWriter, r *http.Request) error {
	transfers, err := h.service.ListTransfers(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, transfers)
	return nil
}

func (h *HTTP) getTransfer(w http.ResponseWriter, r *http.Request) error {
	t, err := h.service.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, t)
	return nil
}

func (h *HTTP) addPending(w http.ResponseWriter, r *http.Request) error {
	var req tracker.AddTransferRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	t, err := h.service.AddPending(r.Context(), &req)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, t)
	return nil
}

func (h *HTTP) clearPending(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.ClearPending(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) newTransfers(w http.ResponseWriter, r *http.Request) error {
	transfers, err := h.service.NewTransfers(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, transfers)
	return nil
}

func (h *HTTP) backfill(w http.ResponseWriter, r *http.Request) error {
	var req tracker.BackfillRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	resp, err := h.service.Backfill(r.Context(), &req)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) refresh(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Refresh(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (h *HTTP) getSeen(w http.ResponseWriter, r *http.Request) error {
	resp, err := h.service.GetSeen(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) markSeen(w http.ResponseWriter, r *http.Request) error {
	var req tracker.MarkSeenRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := h.service.MarkSeen(r.Context(), &req); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// decode reads a JSON body; an empty body leaves v at its zero value
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return apperrors.BadRequestError(err, "invalid JSON")
		}
		return apperrors.BadRequestError(err, "invalid request")
	}
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	apphttp.WriteJSON(w, status, data)
}
