// Package main runs a demo WebSocket client for problem events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	ProblemID string          `json:"problemId,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	problemID := "1"
	if len(os.Args) > 1 {
		problemID = os.Args[1]
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", ProblemID: problemID}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s %s %s", m.Type, string(m.Event), m.Message)
		}
	}()

	// Trigger an improvement with a short optimizer run
	time.Sleep(500 * time.Millisecond)
	body := []byte(`{"mode":"chain","base":"best","budgetMs":3000}`)
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/problem/%s/optimize", base, problemID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tok := os.Getenv("API_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	out, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	log.Printf("optimize -> %s %s", resp.Status, bytes.TrimSpace(out))

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
