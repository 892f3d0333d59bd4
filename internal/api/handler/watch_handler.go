package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"go-sim-loop/internal/pipeline"

	"github.com/gorilla/websocket"
)

const watchWriteTimeout = 10 * time.Second

// WatchResult streams the family result of a request over a websocket
// @Summary Watch the family result
// @Description Upgrade to a websocket and receive the family result (a FamilyResult JSON frame) on every change. The server closes the socket once the result is final.
// @Tags runs
// @Param id path string true "Request ID"
// @Success 101 {object} model.FamilyResult "Switching protocols"
// @Router /runs/{id}/watch [get]
func (h *Handler) WatchResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "request_id", id, "error", err)
		return
	}
	defer conn.Close()

	// The client never sends anything; reading only detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.Logger.Debug("websocket closed", "request_id", id, "error", err)
				}
				return
			}
		}
	}()

	tracker := h.Loop.Tracker
	var last []byte
	for {
		changed := tracker.Watch(tracker.RootOf(id))
		res := h.Loop.Responder.Poll(id)

		frame, err := json.Marshal(res)
		if err != nil {
			h.Logger.Error("failed to encode result", "request_id", id, "error", err)
			return
		}
		// wakeups for other families leave the result unchanged
		if !bytes.Equal(frame, last) {
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.Logger.Warn("websocket write failed", "request_id", id, "error", err)
				return
			}
			last = frame
		}
		if pipeline.IsFinal(res) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, res.State)
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteTimeout))
			return
		}

		select {
		case <-changed:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
