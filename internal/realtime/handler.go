package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"retro/api/internal/retro"
	"retro/api/internal/util"
)

const defaultMaxDecodeErrors = 8

const codeRateLimited retro.Code = "RESOURCE_EXHAUSTED"

type Limits struct {
	MaxPayloadBytes    int
	MaxFramesPerSecond int
	MaxDecodeErrors    int
	WriteTimeout       time.Duration
}

// Handler upgrades GET /ws and feeds frames to the engine, one at a time per
// connection.
type Handler struct {
	engine         *retro.Engine
	logger         *slog.Logger
	limits         Limits
	allowedOrigins []string
	ws             websocket.Server
}

func NewHandler(engine *retro.Engine, logger *slog.Logger, limits Limits, allowedOrigins ...string) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if limits.MaxDecodeErrors <= 0 {
		limits.MaxDecodeErrors = defaultMaxDecodeErrors
	}
	h := &Handler{engine: engine, logger: logger, limits: limits}
	for _, origin := range allowedOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			h.allowedOrigins = append(h.allowedOrigins, origin)
		}
	}
	h.ws = websocket.Server{Handshake: h.checkOrigin, Handler: h.serveConn}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.ws.ServeHTTP(w, r)
}

func (h *Handler) checkOrigin(cfg *websocket.Config, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin != "" {
		parsed, err := url.Parse(origin)
		if err != nil {
			return fmt.Errorf("parse origin: %w", err)
		}
		cfg.Origin = parsed
	}
	if len(h.allowedOrigins) == 0 || origin == "" {
		return nil
	}
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(strings.TrimRight(origin, "/"), allowed) {
			return nil
		}
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "remote", r.RemoteAddr)
	return fmt.Errorf("origin %q not allowed", origin)
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	if h.limits.MaxPayloadBytes > 0 {
		// Leave room for the envelope around the payload.
		conn.MaxPayloadBytes = h.limits.MaxPayloadBytes + 1024
	}
	peer := newWSPeer(util.NewID("conn"), conn, h.limits.WriteTimeout)
	ctx := conn.Request().Context()
	logger := h.logger.With("conn_id", peer.ID(), "remote", conn.Request().RemoteAddr)
	logger.Debug("websocket connected")

	defer func() {
		h.engine.Detach(peer)
		_ = conn.Close()
		logger.Debug("websocket closed")
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				_ = writeWSError(peer, "", retro.CodeInvalidArgument, "payload too large")
				return
			}
			logger.Debug("websocket read failed", "error", err)
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			decodeErrors++
			_ = writeWSError(peer, "", retro.CodeInvalidArgument, "invalid frame payload")
			if decodeErrors >= h.limits.MaxDecodeErrors {
				return
			}
			continue
		}
		decodeErrors = 0

		if h.limits.MaxPayloadBytes > 0 && len(frame.Payload) > h.limits.MaxPayloadBytes {
			_ = writeWSError(peer, frame.RequestID, retro.CodeInvalidArgument, "payload too large")
			continue
		}

		if h.limits.MaxFramesPerSecond > 0 {
			now := time.Now()
			if now.Sub(windowStart) >= time.Second {
				windowStart = now
				framesInWindow = 0
			}
			framesInWindow++
			if framesInWindow > h.limits.MaxFramesPerSecond {
				// dropped unprocessed; the window reopens on the next second
				_ = writeWSError(peer, frame.RequestID, codeRateLimited, "rate limit exceeded")
				continue
			}
		}

		intent, err := retro.DecodeIntent(frame.Type, frame.Payload)
		if err != nil {
			var retroErr *retro.Error
			if errors.As(err, &retroErr) {
				_ = writeWSError(peer, frame.RequestID, retroErr.Code, retroErr.Message)
			}
			continue
		}

		peer.handling(frame.RequestID)
		if err := h.engine.Handle(ctx, peer, intent); err != nil {
			logger.Debug("intent rejected", "event", intent.Name(), "code", retro.CodeOf(err))
		}
		peer.handling("")
	}
}

func writeWSError(peer *wsPeer, requestID string, code retro.Code, message string) error {
	payload, err := json.Marshal(retro.ErrorEvent{Message: message, Code: code})
	if err != nil {
		return err
	}
	return peer.writeFrame(wsFrame{
		Type:      retro.ErrorEvent{}.EventName(),
		RequestID: requestID,
		Payload:   payload,
	})
}
