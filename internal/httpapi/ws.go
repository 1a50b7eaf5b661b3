package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"asistan/pkg/types"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// checkOrigin accepts same-host origins and, with CORS on, the configured ones.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if corsEnabled {
		for _, o := range corsAllowedOrigins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// wsConn serializes data writes; gorilla allows one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteJSON(v)
}

func (c *wsConn) keepAlive(ctx context.Context) {
	t := time.NewTicker(wsPingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// wsChat godoc
// @Summary      Streaming chat over websocket
// @Description  Each text message is a ChatRequest. The server answers with {"token"} messages followed by a ChatResponse with done=true. Errors arrive as ErrorResponse messages.
// @Tags         chat
// @Success      101
// @Router       /ws/chat [get]
func (s *server) wsChat(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	up := websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: checkOrigin}
	raw, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{Conn: raw}
	defer c.Close()
	wsConnections.Inc()
	defer wsConnections.Dec()

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	go c.keepAlive(ctx)

	c.SetReadLimit(maxBodyBytes)
	c.SetPongHandler(func(string) error { return c.SetReadDeadline(time.Now().Add(wsPongWait)) })
	log.Info().Msg("websocket open")
	for {
		// A long turn must not count against the idle deadline.
		_ = c.SetReadDeadline(time.Now().Add(wsPongWait))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		var req types.ChatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			err = c.send(types.ErrorResponse{Error: "invalid JSON message", Code: http.StatusBadRequest})
		} else {
			err = s.wsTurn(ctx, c, req)
		}
		if err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

// wsTurn runs one streamed turn. The returned error is a write failure.
func (s *server) wsTurn(ctx context.Context, c *wsConn, req types.ChatRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return c.send(types.ErrorResponse{Error: "prompt is required", Code: http.StatusBadRequest})
	}
	if !s.acquire(ctx) {
		IncrementBackpressure("turn_busy")
		return c.send(types.ErrorResponse{Error: busyMessage, Code: http.StatusTooManyRequests})
	}
	defer s.release()
	tctx, cancel := turnContext(ctx)
	defer cancel()
	ov := overrides(req)
	ov.OnToken = func(tok string) error { return c.send(types.ChatChunk{Token: tok}) }
	res := s.conv.Generate(tctx, req.Prompt, ov)
	final := chatResponse(res)
	final.Done = true
	return c.send(final)
}
