package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"realtime-notifier/internal/domain"
	"realtime-notifier/internal/handler/dto"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/zlog"
)

type Handler struct {
	service  NotificationService
	validate *validator.Validate
}

func NewHandler(service NotificationService) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// SendNotification is the producer accept endpoint: it responds 202 once
// the notification is durably queued, without waiting for delivery.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req dto.SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	notif, err := h.service.Send(r.Context(), dto.ToDomain(req))
	if err != nil {
		switch err {
		case domain.ErrMissingRecipient, domain.ErrMalformed, domain.ErrInvalidPriority:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case domain.ErrEnqueueFailed:
			// retryable: nothing was accepted
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			zlog.Logger.Error().Err(err).Msg("Failed to send notification")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(dto.SendNotificationResponse{NotificationID: notif.ID})
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	notifs, err := h.service.List(r.Context(), recipientID, limit)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", recipientID).Msg("Failed to list notifications")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]dto.NotificationResponse, 0, len(notifs))
	for _, n := range notifs {
		resp = append(resp, dto.FromDomain(n))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	count, err := h.service.UnreadCount(r.Context(), recipientID)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", recipientID).Msg("Failed to count unread")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.UnreadCountResponse{RecipientID: recipientID, Count: count})
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	prefs, err := h.service.GetPreferences(r.Context(), recipientID)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", recipientID).Msg("Failed to get preferences")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.PreferencesFromDomain(prefs))
}

func (h *Handler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	var req dto.PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	prefs, err := dto.PreferencesToDomain(recipientID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.SetPreferences(r.Context(), prefs); err != nil {
		zlog.Logger.Error().Err(err).Str("recipient", recipientID).Msg("Failed to set preferences")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "preferences updated"})
}

func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	recs, err := h.service.DeadLetters(r.Context(), limit)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to list dead letters")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]dto.DeadLetterResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, dto.DeadLetterFromDomain(rec))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) RequeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	notificationID := chi.URLParam(r, "notificationID")
	err := h.service.RequeueDeadLetter(r.Context(), notificationID)
	if err == domain.ErrNotFound {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", notificationID).Msg("Failed to requeue dead letter")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "requeued"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
