package observability

import (
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/danmuck/tcpros/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("node-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordHandshake("subscriber", nil, 3*time.Millisecond)
	RecordPublish("/metrics_test", 2, 1, time.Millisecond)
	SetLivePeers("/metrics_test", 2)
	RecordReceived("/metrics_test")
	RecordQueueDrop("/metrics_test")
	RecordStreamEnd("/metrics_test", nil)

	if got := testutil.ToFloat64(deliveries.WithLabelValues("/metrics_test")); got != 2 {
		t.Fatalf("unexpected deliveries: %v", got)
	}
	if got := testutil.ToFloat64(evictions.WithLabelValues("/metrics_test")); got != 1 {
		t.Fatalf("unexpected evictions: %v", got)
	}
	if got := testutil.ToFloat64(livePeers.WithLabelValues("/metrics_test")); got != 2 {
		t.Fatalf("unexpected live peers: %v", got)
	}
}

func TestOutcomeLabels(t *testing.T) {
	testlog.Start(t)
	cases := map[string]error{
		"ok":        nil,
		"mismatch":  protocol.MismatchError{Field: "md5sum"},
		"format":    protocol.Formatf("bad"),
		"decode":    protocol.Decode("x", fmt.Errorf("short")),
		"transport": protocol.Transport("dial", fmt.Errorf("refused")),
		"other":     fmt.Errorf("boom"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %q want %q", err, got, want)
		}
	}
}
