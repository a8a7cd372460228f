package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sydsec/gatehouse/internal/auth/service"
	"github.com/sydsec/gatehouse/pkg/httpx"
	"github.com/sydsec/gatehouse/pkg/slogx"
)

// listenTimeout bounds how long a push listener connection stays open.
const listenTimeout = 2 * time.Minute

// PushHandler serves the push-login endpoints, including the SSE stream the
// waiting device holds open.
type PushHandler struct {
	Push *service.PushService
}

type generateRequest struct {
	RequestID string `json:"requestId"`
}

// HandleGenerate handles POST /push/generate (authenticated): opens a push
// session and returns its OTP to the requesting device. The OTP never rides
// the notification stream.
func (h *PushHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}
	if req.RequestID == "" {
		writeValidationError(w, r, "requestId is required")
		return
	}

	session, err := h.Push.CreateSession(r.Context(), EmailFromContext(r.Context()), req.RequestID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, r, http.StatusCreated, map[string]any{
		"requestId": session.RequestID,
		"otp":       session.OTP,
		"createdAt": session.CreatedAt,
	})
}

type pushVerifyRequest struct {
	RequestID string `json:"requestId"`
	OTP       string `json:"otp"`
}

// HandleVerify handles POST /push/verify: the approving device submits the
// OTP. One attempt per session, success or not.
func (h *PushHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req pushVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid JSON body")
		return
	}
	if req.RequestID == "" || req.OTP == "" {
		writeValidationError(w, r, "requestId and otp are required")
		return
	}

	token, err := h.Push.Verify(r.Context(), req.RequestID, req.OTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, r, http.StatusOK, map[string]string{"accessToken": token})
}

// HandleListen handles GET /push/listen?requestId=...: an SSE stream held
// open by the device waiting to be logged in. It delivers at most one
// authorization event, then closes. The connection also closes on client
// disconnect or after the listen timeout.
func (h *PushHandler) HandleListen(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("requestId")
	if requestID == "" {
		writeValidationError(w, r, "requestId is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(w, r, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}

	events := h.Push.Subscribe(requestID)
	defer h.Push.Unsubscribe(requestID, events)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	timeout := time.NewTimer(listenTimeout)
	defer timeout.Stop()

	log := slogx.FromContext(r.Context())

	select {
	case ev, open := <-events:
		if !open {
			// Replaced by a newer listener for the same request id.
			return
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error("failed to encode push event", "err", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload)
		flusher.Flush()
	case <-timeout.C:
		fmt.Fprint(w, "event: timeout\ndata: {}\n\n")
		flusher.Flush()
	case <-r.Context().Done():
	}
}

// HandleSessions handles GET /push/sessions (authenticated): lists the
// caller's open push sessions without their OTPs.
func (h *PushHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Push.ListSessions(r.Context(), EmailFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, map[string]any{
			"requestId": s.RequestID,
			"createdAt": s.CreatedAt,
		})
	}
	httpx.WriteSuccess(w, r, http.StatusOK, out)
}
