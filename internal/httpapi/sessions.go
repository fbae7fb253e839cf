package httpapi

import (
	"net/http"
	"strings"

	"dinein/ordering-service/internal/session"
)

type createSessionRequest struct {
	MobileNum    string `json:"mobileNum"`
	RestaurantID string `json:"restaurantId"`
	TableID      string `json:"tableId"`
}

type sessionStatusRequest struct {
	RestaurantID string `json:"restaurantId"`
	SessionID    string `json:"sessionId"`
	TableID      string `json:"tableId"`
}

type paymentConfirmRequest struct {
	SessionID        string `json:"sessionId"`
	SignedPaymentKey string `json:"signedPaymentKey"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.MobileNum = strings.TrimSpace(req.MobileNum)
	req.RestaurantID = strings.TrimSpace(req.RestaurantID)
	req.TableID = strings.TrimSpace(req.TableID)

	if req.MobileNum == "" || req.RestaurantID == "" || req.TableID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "mobileNum, restaurantId, and tableId are required")
		return
	}

	result, err := h.sessions.CreateOrReuse(r.Context(), session.CreateInput{
		CustomerNumber: req.MobileNum,
		RestaurantID:   req.RestaurantID,
		TableID:        req.TableID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if result.Outcome == session.OutcomeExpired {
		writeJSON(w, http.StatusOK, session.StatusResult{SessionStatus: result.SessionStatus})
		return
	}
	writeJSON(w, http.StatusOK, result.Summary)
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	var req sessionStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RestaurantID = strings.TrimSpace(req.RestaurantID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.TableID = strings.TrimSpace(req.TableID)

	if req.RestaurantID == "" || req.SessionID == "" || req.TableID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "restaurantId, sessionId, and tableId are required")
		return
	}
	if !isValidUUIDv4(req.SessionID) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "sessionId must be a UUID v4")
		return
	}

	status, err := h.sessions.CheckStatus(r.Context(), session.StatusInput{
		SessionID:    req.SessionID,
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePaymentConfirm(w http.ResponseWriter, r *http.Request) {
	var req paymentConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)

	if req.SessionID == "" || req.SignedPaymentKey == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "sessionId and signedPaymentKey are required")
		return
	}
	if !isValidUUIDv4(req.SessionID) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "sessionId must be a UUID v4")
		return
	}

	summary, err := h.sessions.ConfirmPayment(r.Context(), session.ConfirmInput{
		SessionID:        req.SessionID,
		SignedPaymentKey: req.SignedPaymentKey,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
