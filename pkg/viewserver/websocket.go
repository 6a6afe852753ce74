package viewserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"layerview/pkg/coloring"
	lverrors "layerview/pkg/errors"
	"layerview/pkg/loader"
)

const (
	wsReadLimit  = 64 * 1024
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// wsClient is one websocket connection.
type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	once   sync.Once
}

func (s *Server) newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     s.nextWSID.Add(1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Send queues msg. Messages to a client that does not keep up are dropped.
func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.log.Warn("dropping message to websocket client %d (queue full)", c.id)
	}
}

func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.WithError(err).Debug("websocket client %d read", c.id)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.log.WithError(err).Debug("websocket client %d write", c.id)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(nil, -32700, "Parse error")
		return
	}
	result, err := c.server.dispatchMethod(req.Method, req.Params)
	if err != nil {
		c.sendError(req.ID, -32000, err.Error())
		return
	}
	c.Send(jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (c *wsClient) sendError(id any, code int, message string) {
	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

// dispatchMethod routes a websocket JSON-RPC call. Loads requested this way
// run in the background and report through notifications.
func (s *Server) dispatchMethod(method string, params map[string]any) (any, error) {
	switch method {
	case "server.info":
		return s.serverInfo(), nil
	case "model.info":
		cur := s.loader.Current()
		if cur == nil {
			return nil, lverrors.NoModelError()
		}
		return s.modelSummary(cur), nil
	case "model.load":
		path, _ := params["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("missing 'path' parameter")
		}
		if s.files == nil {
			return nil, fmt.Errorf("no G-code root configured")
		}
		full, err := s.files.ResolveFile(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"generation": s.loader.LoadAsync(full)}, nil
	case "model.clear":
		s.loader.Clear()
		return map[string]any{}, nil
	case "model.history":
		limit, _ := params["limit"].(float64)
		h := s.loader.History()
		return map[string]any{"count": h.Len(), "loads": h.List(int(limit), 0, "")}, nil
	case "coloring.get":
		return map[string]any{"parameter": s.Mapper().Parameter.String()}, nil
	case "coloring.set":
		name, _ := params["parameter"].(string)
		p, err := coloring.ParseParameter(name)
		if err != nil {
			return nil, err
		}
		s.SetColoring(p)
		return map[string]any{"parameter": p.String()}, nil
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade")
		return
	}
	client := s.newWSClient(conn)

	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.log.Debug("websocket client %d connected", client.id)

	go client.writePump()
	client.readPump()
}

func (s *Server) removeClient(c *wsClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, c.id)
	s.wsClientMu.Unlock()
	s.log.Debug("websocket client %d disconnected", c.id)
}

// broadcast sends a notification to every connected client.
func (s *Server) broadcast(method string, params ...any) {
	msg := jsonRPCNotification{JSONRPC: "2.0", Method: method, Params: params}
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, c := range s.wsClients {
		c.Send(msg)
	}
}

// forwardEvents turns loader events into notify_load_* notifications until
// the subscription is closed.
func (s *Server) forwardEvents(events <-chan loader.Event) {
	for ev := range events {
		s.broadcast("notify_load_"+string(ev.Type), ev)
	}
}
