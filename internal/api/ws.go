package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Websocket protocol on /ws:
//
//	client: {"type":"subscribe","id":"s1","problemId":"42"}
//	server: {"type":"next","id":"s1","event":{"type":"solution.improved","data":{...}}}
//	client: {"type":"complete","id":"s1"}
//
// plus ping/pong keepalives.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	ProblemID string `json:"problemId,omitempty"`
	Event     *Event `json:"event,omitempty"`
	Message   string `json:"message,omitempty"`
}

const wsReadTimeout = 60 * time.Second

// WSHandler multiplexes problem event subscriptions over one websocket.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(m wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(m)
	}

	type sub struct {
		problemID string
		ch        chan Event
	}
	subs := map[string]sub{}
	var wg sync.WaitGroup
	defer func() {
		for _, sb := range subs {
			s.Broker.Unsubscribe(sb.problemID, sb.ch)
		}
		wg.Wait()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				wmu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.ID == "" || msg.ProblemID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Message: "id and problemId required"})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Message: "subscription id in use"})
				continue
			}
			if _, err := s.Store.GetTask(r.Context(), msg.ProblemID); err != nil {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Message: "unknown problem " + msg.ProblemID})
				continue
			}
			ch := s.Broker.Subscribe(msg.ProblemID)
			subs[msg.ID] = sub{problemID: msg.ProblemID, ch: ch}
			_ = write(wsMessage{Type: "subscribed", ID: msg.ID, ProblemID: msg.ProblemID})
			wg.Add(1)
			go func(id string, c chan Event) {
				defer wg.Done()
				for evt := range c {
					e := evt
					if write(wsMessage{Type: "next", ID: id, Event: &e}) != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if sb, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(sb.problemID, sb.ch)
				delete(subs, msg.ID)
			}
		default:
			_ = write(wsMessage{Type: "error", ID: msg.ID, Message: "unknown message type " + msg.Type})
		}
	}
}
