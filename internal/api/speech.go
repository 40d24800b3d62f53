package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/alchemy-app/backend/internal/speech"
)

var recognizeUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type recognizeClientMessage struct {
	Type string `json:"type"`
}

// handleRecognize streams microphone audio from the client to the
// recognizer and pushes transcript events back. The final transcript is
// routed through the conversation store, so voice commands and dictated
// messages behave exactly like typed input.
func (h *Handler) handleRecognize(c *gin.Context) {
	if h.recognizer == nil || !h.recognizer.RequestAuthorization() {
		writeError(c, http.StatusServiceUnavailable, "speech recognition is not configured", speech.ErrRecognizerUnavailable)
		return
	}

	conn, err := recognizeUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warnw("recognize websocket upgrade failed", "error", err)
		}
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var (
		session   *speech.Session
		sessionMu sync.Mutex
		writeMu   sync.Mutex
	)

	sendJSON := func(payload interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(payload)
	}

	sendError := func(message string, detail error) {
		event := gin.H{"type": "error", "error": message}
		if detail != nil {
			event["detail"] = detail.Error()
		}
		if h.logger != nil {
			h.logger.Warnw("recognize websocket error", "message", message, "error", detail)
		}
		_ = sendJSON(event)
	}

	currentSession := func() *speech.Session {
		sessionMu.Lock()
		defer sessionMu.Unlock()
		return session
	}

	stopSession := func() {
		sessionMu.Lock()
		current := session
		session = nil
		sessionMu.Unlock()
		if current != nil {
			current.StopRecording()
		}
	}
	defer stopSession()

	startSession := func() {
		sessionMu.Lock()
		alreadyStarted := session != nil
		sessionMu.Unlock()
		if alreadyStarted {
			sendError("recording already started", nil)
			return
		}

		opened, err := h.recognizer.StartRecording(ctx, func(final string) {
			_ = sendJSON(gin.H{"type": "transcript", "text": final, "is_final": true})

			if strings.TrimSpace(final) == "" {
				return
			}
			if err := h.store.HandleTranscript(context.WithoutCancel(ctx), final); err != nil {
				sendError("transcript handling failed", err)
				return
			}
			_ = sendJSON(gin.H{"type": "handled", "text": final})
		})
		if err != nil {
			sendError("start recording", err)
			return
		}

		opened.OnPartial = func(text string) {
			_ = sendJSON(gin.H{"type": "transcript", "text": text, "is_final": false})
		}

		sessionMu.Lock()
		session = opened
		sessionMu.Unlock()

		if err := sendJSON(gin.H{"type": "ready"}); err != nil {
			stopSession()
		}
	}

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && h.logger != nil {
				h.logger.Debugw("recognize client disconnected", "error", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			var msg recognizeClientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				sendError("invalid control message", err)
				continue
			}

			switch strings.ToLower(strings.TrimSpace(msg.Type)) {
			case "start":
				startSession()
			case "stop":
				stopSession()
			case "ping":
				_ = sendJSON(gin.H{"type": "pong"})
			default:
				sendError("unsupported control message", fmt.Errorf("%s", msg.Type))
			}

		case websocket.BinaryMessage:
			current := currentSession()
			if current == nil {
				sendError("recording not started", errors.New("start message required before audio"))
				continue
			}
			if err := current.SendAudio(payload); err != nil {
				sendError("forward audio chunk", err)
				stopSession()
			}

		case websocket.CloseMessage:
			return
		}
	}
}
