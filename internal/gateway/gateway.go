// Package gateway is the WebSocket endpoint. Each connection is
// authenticated before the upgrade, then reads frames, turns them into chat
// service calls or hub subscriptions, and writes acks, errors and chat
// events back through its outbox.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/auth"
	"github.com/lalith-99/relaychat/internal/chat"
	"github.com/lalith-99/relaychat/internal/middleware"
	"github.com/lalith-99/relaychat/internal/observ"
	"github.com/lalith-99/relaychat/internal/realtime"
	"github.com/lalith-99/relaychat/internal/redisx"
	"go.uber.org/zap"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxFrameBytes   = 64 << 10
	maxDecodeErrors = 5
)

type Options struct {
	Tokens  *auth.Tokens
	Hub     *realtime.Hub
	Chats   *chat.Service
	Limiter redisx.RateLimiter

	// RequireMembership makes joinChat fail for users outside the chat.
	RequireMembership bool
	RequestTimeout    time.Duration
	OutboxSize        int
	AllowedOrigins    []string

	Logger  *zap.Logger
	Metrics *observ.Metrics
}

type Handler struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *observ.Metrics
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observ.NopMetrics()
	}
	if opts.Limiter == nil {
		opts.Limiter = redisx.NewLocalLimiter(0, time.Second)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.OutboxSize < 1 {
		opts.OutboxSize = 64
	}

	h := &Handler{
		opts:    opts,
		logger:  opts.Logger.With(zap.String("component", "gateway")),
		metrics: opts.Metrics,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts any origin when none are configured. Requests without
// an Origin header come from non-browser clients and are accepted.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func tokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return middleware.BearerToken(r.Header.Get("Authorization"))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.opts.Tokens.Verify(tokenFromRequest(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   apperr.Code(apperr.KindAuth),
			"message": apperr.PublicMessage(err),
		})
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	conn := realtime.NewConn(claims.UserID, h.opts.OutboxSize)
	s := &session{
		h:      h,
		ws:     ws,
		conn:   conn,
		logger: h.logger.With(zap.String("conn_id", conn.ID.String()), zap.String("user_id", claims.UserID.String())),
	}

	h.metrics.Connections.Inc()
	defer h.metrics.Connections.Dec()

	s.logger.Debug("connected")
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump()
	}()

	// Disconnect closes the outbox, which ends the write pump.
	defer func() {
		h.opts.Hub.Disconnect(conn)
		<-done
		s.logger.Debug("disconnected")
	}()

	s.readPump(r.Context())
}

type session struct {
	h      *Handler
	ws     *websocket.Conn
	conn   *realtime.Conn
	logger *zap.Logger
}

func (s *session) readPump(ctx context.Context) {
	s.ws.SetReadLimit(maxFrameBytes)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	decodeErrors := 0
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame inFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			decodeErrors++
			s.sendError("", apperr.Validation("invalid frame"))
			if decodeErrors >= maxDecodeErrors {
				return
			}
			continue
		}
		decodeErrors = 0

		s.dispatch(ctx, frame)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-s.conn.Outbox():
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				// Unblock the read pump so the connection is torn down.
				_ = s.ws.Close()
				s.drain()
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.ws.Close()
				s.drain()
				return
			}
		}
	}
}

// drain discards frames until the hub closes the outbox.
func (s *session) drain() {
	for range s.conn.Outbox() {
	}
}

func (s *session) send(frame outFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("encode frame", zap.Error(err))
		return
	}
	if !s.conn.Send(data) {
		s.logger.Warn("reply dropped", zap.String("type", frame.Type))
	}
}

func (s *session) ack(requestID string, payload any) {
	s.send(outFrame{Type: frameAck, RequestID: requestID, Payload: payload})
}

func (s *session) sendError(requestID string, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindStore {
		s.logger.Error("request failed", zap.String("request_id", requestID), zap.Error(err))
	}
	s.send(outFrame{
		Type:      frameError,
		RequestID: requestID,
		Payload:   errorPayload{Code: apperr.Code(kind), Message: apperr.PublicMessage(err)},
	})
}
