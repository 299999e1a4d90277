package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlNPacifist/icfpc2023/internal/config"
	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
	"github.com/SlNPacifist/icfpc2023/internal/store"
)

func testTask() *model.Task {
	return &model.Task{
		RoomWidth:       300,
		RoomHeight:      300,
		StageWidth:      100,
		StageHeight:     100,
		StageBottomLeft: geom.Point{X: 100, Y: 100},
		Musicians:       []int{0, 1, 0},
		Attendees: []model.Attendee{
			{X: 50, Y: 150, Tastes: []float64{1000, -500}},
			{X: 250, Y: 150, Tastes: []float64{-200, 800}},
			{X: 150, Y: 260, Tastes: []float64{300, 300}},
		},
	}
}

const (
	validSolution   = `{"placements":[{"x":120,"y":120},{"x":150,"y":150},{"x":180,"y":180}]}`
	overlapSolution = `{"placements":[{"x":120,"y":120},{"x":125,"y":120},{"x":180,"y":180}]}`
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = ""
	cfg.HTTP.RateRPS = 0
	cfg.HTTP.OptimizeBudget = 2 * time.Second
	cfg.Optimizer.Moves = []string{"greedy", "swap", "volumes"}
	cfg.Optimizer.Weights = nil
	cfg.Optimizer.Patience = 5
	for _, m := range mutate {
		m(&cfg)
	}
	m := store.NewMemory()
	require.NoError(t, m.PutTask(context.Background(), "1", testTask()))
	s, err := newServer(cfg, nil, m)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthReady(t *testing.T) {
	h := newTestServer(t).Routes()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	rr := do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "memory", decode[map[string]string](t, rr)["store"])
}

func TestProblemAndSolutionLookups(t *testing.T) {
	h := newTestServer(t).Routes()

	rr := do(t, h, http.MethodGet, "/api/problem/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"stage_bottom_left":[100,100]`)

	rr = do(t, h, http.MethodGet, "/api/problem/99", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Not Found", decode[Problem](t, rr).Title)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/solution/1", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/api/problem/1", "").Code)
}

func TestScoreEndpoint(t *testing.T) {
	h := newTestServer(t).Routes()

	rr := do(t, h, http.MethodPost, "/api/solution/1/score", validSolution)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var bd struct {
		Total       int64   `json:"total"`
		PerMusician []int64 `json:"perMusician"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bd))
	assert.Len(t, bd.PerMusician, 3)
	var sum int64
	for _, v := range bd.PerMusician {
		sum += v
	}
	assert.Equal(t, bd.Total, sum)

	rr = do(t, h, http.MethodPost, "/api/solution/1/score", overlapSolution)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	p := decode[Problem](t, rr)
	assert.Equal(t, "overlap", p.Violation)
	require.NotNil(t, p.Musician)
	require.NotNil(t, p.Other)
	assert.Equal(t, 0, *p.Musician)
	assert.Equal(t, 1, *p.Other)

	rr = do(t, h, http.MethodPost, "/api/solution/1/score", `{"placements":[{"x":101,"y":150}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "structural_mismatch", decode[Problem](t, rr).Violation)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/solution/1/score", `{`).Code)
}

func TestUpdateStoresOnlyImprovements(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	events := s.Broker.Subscribe("1")
	defer s.Broker.Unsubscribe("1", events)

	rr := do(t, h, http.MethodPost, "/api/solution/1/update", overlapSolution)
	require.Equal(t, http.StatusOK, rr.Code)
	bad := decode[map[string]any](t, rr)
	assert.Equal(t, float64(opt.MinScore), bad["score"])
	assert.Equal(t, false, bad["saved"])

	rr = do(t, h, http.MethodPost, "/api/solution/1/update", validSolution)
	require.Equal(t, http.StatusOK, rr.Code)
	good := decode[map[string]any](t, rr)
	assert.Equal(t, true, good["saved"])

	select {
	case evt := <-events:
		assert.Equal(t, "solution.improved", evt.Type)
		assert.Equal(t, "1", evt.Data["problemId"])
	case <-time.After(time.Second):
		t.Fatal("no improvement event")
	}

	rr = do(t, h, http.MethodPost, "/api/solution/1/update", validSolution)
	assert.Equal(t, false, decode[map[string]any](t, rr)["saved"])
	select {
	case evt := <-events:
		t.Fatalf("unexpected event %v", evt)
	default:
	}

	rr = do(t, h, http.MethodGet, "/api/solution/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decode[store.Record](t, rr)
	assert.Equal(t, int64(good["score"].(float64)), rec.Score)
	assert.Len(t, rec.Solution.Placements, 3)
}

func TestOptimizeEndpoint(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.HTTP.APIToken = "tok" })
	h := s.Routes()
	body := `{"base":"spread","seed":3,"budgetMs":1500}`

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/problem/1/optimize", body).Code)

	rr := do(t, h, http.MethodPost, "/api/problem/1/optimize", body, "Authorization", "Bearer tok")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode[map[string]any](t, rr)
	assert.Equal(t, true, out["saved"])
	assert.NotNil(t, out["metrics"])

	rr = do(t, h, http.MethodGet, "/api/problem/1/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"chain"`)

	rr = do(t, h, http.MethodPost, "/api/problem/1/optimize", `{"mode":"annealing"}`, "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/problem/1/optimize", `{"budgetMs":-1}`, "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/problem/404/optimize", "", "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProblemsRanking(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Store.PutTask(context.Background(), "2", testTask()))
	h := s.Routes()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/solution/1/update", validSolution).Code)

	rr := do(t, h, http.MethodGet, "/api/problems", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Problems []struct {
			ProblemID string `json:"problemId"`
			Gap       int64  `json:"gap"`
		} `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Problems, 2)
	assert.Equal(t, "2", body.Problems[0].ProblemID)
	assert.GreaterOrEqual(t, body.Problems[0].Gap, body.Problems[1].Gap)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.HTTP.RateRPS = 0.001
		c.HTTP.RateBurst = 1
	}).Routes()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestMetricsAndDebug(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.HTTP.APIToken = "secret-token" })
	h := s.Routes()
	do(t, h, http.MethodGet, "/api/problem/1", "")

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",path="GET /api/problem/{id}",status="200"}`)

	rr = do(t, h, http.MethodGet, "/debug", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret-token")
	assert.Contains(t, rr.Body.String(), `"apiToken":true`)
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/solution/1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q: %v", prefix, lines.Err())
		return ""
	}
	waitFor("event: heartbeat")

	up, err := http.Post(ts.URL+"/api/solution/1/update", "application/json", bytes.NewReader([]byte(validSolution)))
	require.NoError(t, err)
	up.Body.Close()

	assert.Equal(t, "event: solution.improved", waitFor("event: solution.improved"))
	assert.Contains(t, waitFor("data: "), `"problemId":"1"`)
}

func TestWebsocketStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "subscribe", ID: "a", ProblemID: "404"}))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "subscribe", ID: "s1", ProblemID: "1"}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "subscribed", msg.Type)

	up, err := http.Post(ts.URL+"/api/solution/1/update", "application/json", bytes.NewReader([]byte(validSolution)))
	require.NoError(t, err)
	up.Body.Close()

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "next", msg.Type)
	assert.Equal(t, "s1", msg.ID)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "solution.improved", msg.Event.Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "complete", ID: "s1"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "complete", msg.Type)
}
