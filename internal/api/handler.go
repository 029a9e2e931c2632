// Package api exposes the producer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"PulseQueue/internal/csvparser"
	"PulseQueue/internal/models"
	"PulseQueue/internal/validate"
)

const (
	maxBodyBytes   = 10 << 20
	maxCSVJobRows  = 500
	maxCSVMembers  = 10000
	csvFormField   = "file"
	multipartLimit = 8 << 20
)

// Enqueuer is the producer's public surface.
type Enqueuer interface {
	EnqueueEmailJobs(ctx context.Context, jobs []models.EmailJob) (models.EnqueueResult, error)
	BroadcastEmail(ctx context.Context, b models.BroadcastEmail) (models.BroadcastResult, error)
}

type Handler struct {
	Producer Enqueuer
	Log      *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
	Index *int   `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
	Rule  string `json:"rule,omitempty"`
}

// SendEmails accepts an EmailJobBatch.
func (h *Handler) SendEmails(w http.ResponseWriter, r *http.Request) {
	var batch models.EmailJobBatch
	if err := decodeJSON(w, r, &batch); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Batch(batch); err != nil {
		h.fail(w, err)
		return
	}
	h.enqueue(w, r, batch.Jobs)
}

// SendEmailsCSV accepts a multipart CSV upload with one job per row.
func (h *Handler) SendEmailsCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	file, _, err := r.FormFile(csvFormField)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "missing csv file")
		return
	}
	defer file.Close()

	jobs, err := csvparser.ParseJobs(file, maxCSVJobRows)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.enqueue(w, r, jobs)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, jobs []models.EmailJob) {
	res, err := h.Producer.EnqueueEmailJobs(r.Context(), jobs)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.Log.Info("email jobs enqueued",
		zap.Int("submitted", len(jobs)),
		zap.Int("enqueued", len(res.MessageIDs)),
		zap.Int("failed", len(res.Failed)),
	)
	respondWithJSON(w, http.StatusAccepted, res)
}

// Broadcast accepts a BroadcastEmail.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var b models.BroadcastEmail
	if err := decodeJSON(w, r, &b); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.broadcast(w, r, b)
}

// BroadcastCSV accepts the broadcast fields as form values and the
// recipients as a CSV file.
func (h *Handler) BroadcastCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(multipartLimit); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile(csvFormField)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "missing csv file")
		return
	}
	defer file.Close()

	recipients, err := csvparser.ParseRecipients(file, maxCSVMembers)
	if errors.Is(err, csvparser.ErrTooManyRows) {
		h.fail(w, &validate.ValidationError{Index: -1, Field: "recipients", Rule: "max"})
		return
	}
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.broadcast(w, r, models.BroadcastEmail{
		BroadcastID: r.FormValue("broadcastId"),
		Recipients:  recipients,
		From:        r.FormValue("from"),
		Subject:     r.FormValue("subject"),
		HTML:        r.FormValue("html"),
		Text:        r.FormValue("text"),
		ReplyTo:     r.FormValue("replyTo"),
	})
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request, b models.BroadcastEmail) {
	res, err := h.Producer.BroadcastEmail(r.Context(), b)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.Log.Info("broadcast enqueued",
		zap.String("broadcast_id", b.BroadcastID),
		zap.Int("enqueued", res.EnqueuedCount),
		zap.Int("failed", res.FailedCount),
	)
	respondWithJSON(w, http.StatusAccepted, res)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps validation errors to 422 and anything else to 500.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		resp := errorResponse{Error: verr.Error(), Field: verr.Field, Rule: verr.Rule}
		if verr.Index >= 0 {
			resp.Index = &verr.Index
		}
		respondWithJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	h.Log.Error("enqueue failed", zap.Error(err))
	respondWithError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}
