package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/tcpros/internal/node"
	"github.com/danmuck/tcpros/internal/protocol/session"
	"github.com/danmuck/tcpros/internal/publisher"
	"github.com/danmuck/tcpros/internal/testutil/testlog"
)

type stubSource struct {
	ready  bool
	topics []node.TopicInfo
	subs   []node.SubscriptionInfo
}

func (s stubSource) Topics() []node.TopicInfo               { return s.topics }
func (s stubSource) Subscriptions() []node.SubscriptionInfo { return s.subs }
func (s stubSource) Ready() bool                            { return s.ready }

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr, body
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s := New("/talker", ":0", nil, stubSource{ready: true})

	rr, body := get(t, s, "/health")
	if rr.Code != http.StatusOK || body["status"] != "ok" || body["caller_id"] != "/talker" {
		t.Fatalf("unexpected health: %d %v", rr.Code, body)
	}
	rr, body = get(t, s, "/ready")
	if rr.Code != http.StatusOK || body["ready"] != true {
		t.Fatalf("unexpected ready: %d %v", rr.Code, body)
	}

	notReady := New("/talker", ":0", nil, stubSource{})
	if rr, _ := get(t, notReady, "/ready"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestTopicsListing(t *testing.T) {
	testlog.Start(t)
	src := stubSource{
		ready: true,
		topics: []node.TopicInfo{{
			Topic: "/chatter",
			Type:  "std_msgs/String",
			Peers: []publisher.PeerInfo{{
				Info:     session.Info{Peer: "127.0.0.1:5000", State: "streaming"},
				CallerID: "/listener",
			}},
		}},
		subs: []node.SubscriptionInfo{{Topic: "/pose", Type: "geometry_msgs/PointStamped"}},
	}
	s := New("/talker", ":0", []string{"http://localhost:8080"}, src)

	rr, body := get(t, s, "/topics")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	pubs, ok := body["publications"].([]any)
	if !ok || len(pubs) != 1 {
		t.Fatalf("unexpected publications: %v", body["publications"])
	}
	first := pubs[0].(map[string]any)
	peers := first["peers"].([]any)
	if first["topic"] != "/chatter" || len(peers) != 1 || peers[0].(map[string]any)["caller_id"] != "/listener" {
		t.Fatalf("unexpected publication: %v", first)
	}

	rr, body = get(t, s, "/topics/chatter")
	if rr.Code != http.StatusOK || body["type"] != "std_msgs/String" {
		t.Fatalf("unexpected topic lookup: %d %v", rr.Code, body)
	}
	if rr, _ := get(t, s, "/topics/missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New("/talker", ":0", nil, stubSource{ready: true})
	get(t, s, "/health")
	rr, _ := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "tcpros_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}
