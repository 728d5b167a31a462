package node

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/danmuck/tcpros/internal/config"
	"github.com/danmuck/tcpros/internal/directory"
	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/danmuck/tcpros/internal/protocol/msg/stdmsgs"
	"github.com/danmuck/tcpros/internal/subscriber"
	"github.com/danmuck/tcpros/internal/testutil/testlog"
)

func startNode(t *testing.T, callerID string, dir directory.Directory) *Node {
	t.Helper()
	n, err := New(config.NodeConfig{
		CallerID:   callerID,
		Host:       "127.0.0.1",
		ListenAddr: "127.0.0.1:0",
	}, dir)
	if err != nil {
		t.Fatalf("new node %s: %v", callerID, err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start node %s: %v", callerID, err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recv(t *testing.T, s *Subscription[stdmsgs.String]) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	v, err := s.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return v.Data
}

func TestResolveHost(t *testing.T) {
	testlog.Start(t)
	if got := ResolveHost(config.NodeConfig{Host: " robot-1 "}); got != "robot-1" {
		t.Fatalf("expected configured host, got %q", got)
	}
	want, err := os.Hostname()
	if err != nil || want == "" {
		want = "localhost"
	}
	if got := ResolveHost(config.NodeConfig{}); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAdvertiseAddrFillsUnspecifiedHost(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		listen net.Addr
		want   string
	}{
		{&net.TCPAddr{IP: net.IPv6zero, Port: 7000}, "robot:7000"},
		{&net.TCPAddr{IP: net.IPv4zero, Port: 7001}, "robot:7001"},
		{&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 7002}, "10.0.0.5:7002"},
	}
	for _, tc := range cases {
		if got := advertiseAddr(tc.listen, "robot"); got != tc.want {
			t.Fatalf("advertiseAddr(%s) = %q, want %q", tc.listen, got, tc.want)
		}
	}
}

func TestPublishSubscribeThroughDirectory(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	dir := directory.NewStatic()
	talker := startNode(t, "/talker", dir)
	listener := startNode(t, "/listener", dir)

	pub, err := Advertise(ctx, talker, "/chatter", stdmsgs.StringCodec, false)
	if err != nil {
		t.Fatalf("advertise: %v", err)
	}
	sub, err := Subscribe(ctx, listener, "/chatter", stdmsgs.StringCodec)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, "publisher peer", func() bool { return len(pub.Peers()) == 1 })

	if n, err := pub.Publish(stdmsgs.String{Data: "hello"}); err != nil || n != 1 {
		t.Fatalf("expected one delivery, got %d err=%v", n, err)
	}
	if got := recv(t, sub); got != "hello" {
		t.Fatalf("unexpected value %q", got)
	}

	topics := talker.Topics()
	if len(topics) != 1 || topics[0].Topic != "/chatter" || len(topics[0].Peers) != 1 {
		t.Fatalf("unexpected topics: %+v", topics)
	}
	if topics[0].Peers[0].CallerID != "/listener" {
		t.Fatalf("unexpected peer caller id: %+v", topics[0].Peers[0])
	}
	subs := listener.Subscriptions()
	if len(subs) != 1 || len(subs[0].Connections) != 1 || subs[0].Connections[0].State != "streaming" {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}
}

func TestSubscriptionFollowsDirectoryUpdates(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	dir := directory.NewStatic()
	first := startNode(t, "/talker_a", dir)
	second := startNode(t, "/talker_b", dir)
	listener := startNode(t, "/listener", dir)

	pubA, err := Advertise(ctx, first, "/chatter", stdmsgs.StringCodec, false)
	if err != nil {
		t.Fatalf("advertise a: %v", err)
	}
	sub, err := Subscribe(ctx, listener, "/chatter", stdmsgs.StringCodec)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	pubB, err := Advertise(ctx, second, "/chatter", stdmsgs.StringCodec, false)
	if err != nil {
		t.Fatalf("advertise b: %v", err)
	}
	waitFor(t, "fan-in of both publishers", func() bool { return len(sub.Publishers()) == 2 })
	waitFor(t, "peers registered", func() bool { return len(pubA.Peers()) == 1 && len(pubB.Peers()) == 1 })

	_, _ = pubA.Publish(stdmsgs.String{Data: "from a"})
	_, _ = pubB.Publish(stdmsgs.String{Data: "from b"})
	seen := map[string]bool{recv(t, sub): true, recv(t, sub): true}
	if !seen["from a"] || !seen["from b"] {
		t.Fatalf("expected values from both publishers, got %v", seen)
	}

	if err := dir.Withdraw(ctx, "/chatter", first.Addr()); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	waitFor(t, "withdrawn publisher dropped", func() bool { return len(sub.Publishers()) == 1 })
	waitFor(t, "publisher evicts closed subscriber", func() bool {
		_, _ = pubA.Publish(stdmsgs.String{Data: "dropped"})
		return len(pubA.Peers()) == 0
	})
}

func TestSubscribeRejectedTypeFails(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	talker := startNode(t, "/talker", directory.NewStatic())
	if _, err := Advertise(ctx, talker, "/chatter", stdmsgs.Int32Codec, false); err != nil {
		t.Fatalf("advertise: %v", err)
	}

	// The listener's directory does not know the type.
	listenerDir := directory.NewStatic()
	if err := listenerDir.Advertise(ctx, "/chatter", "", talker.Addr()); err != nil {
		t.Fatalf("seed directory: %v", err)
	}
	listener := startNode(t, "/listener", listenerDir)
	if _, err := Subscribe(ctx, listener, "/chatter", stdmsgs.StringCodec); !errors.Is(err, protocol.ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if subs := listener.Subscriptions(); len(subs) != 0 {
		t.Fatalf("failed subscription must not be tracked: %+v", subs)
	}
}

func TestUnknownTopicIsRejected(t *testing.T) {
	testlog.Start(t)
	talker := startNode(t, "/talker", directory.NewStatic())
	_, err := subscriber.Dial(context.Background(), talker.Addr(), stdmsgs.StringCodec, subscriber.Options{
		CallerID: "/listener",
		Topic:    "/nope",
	})
	var remote protocol.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote rejection, got %v", err)
	}
}

func TestAdvertiseErrors(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	dir := directory.NewStatic()
	idle, err := New(config.NodeConfig{CallerID: "/idle", ListenAddr: "127.0.0.1:0"}, dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := Advertise(ctx, idle, "/chatter", stdmsgs.StringCodec, false); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}

	talker := startNode(t, "/talker", dir)
	if _, err := Advertise(ctx, talker, "/chatter", stdmsgs.StringCodec, false); err != nil {
		t.Fatalf("advertise: %v", err)
	}
	if _, err := Advertise(ctx, talker, "/chatter", stdmsgs.StringCodec, false); !errors.Is(err, ErrTopicInUse) {
		t.Fatalf("expected ErrTopicInUse, got %v", err)
	}
	if _, err := New(config.NodeConfig{CallerID: "/x", ListenAddr: ":0"}, nil); !errors.Is(err, ErrDirectoryUnset) {
		t.Fatalf("expected ErrDirectoryUnset, got %v", err)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	dir := directory.NewStatic()
	talker := startNode(t, "/talker", dir)
	listener := startNode(t, "/listener", dir)
	if _, err := Advertise(ctx, talker, "/chatter", stdmsgs.StringCodec, true); err != nil {
		t.Fatalf("advertise: %v", err)
	}
	sub, err := Subscribe(ctx, listener, "/chatter", stdmsgs.StringCodec)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := listener.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	if _, err := sub.Recv(ctx); !errors.Is(err, subscriber.ErrClosed) {
		t.Fatalf("expected closed subscription, got %v", err)
	}
	if listener.Ready() {
		t.Fatalf("closed node should not be ready")
	}
	if _, err := Subscribe(ctx, listener, "/chatter", stdmsgs.StringCodec); err == nil {
		t.Fatalf("subscribe on closed node should fail")
	}
}

func TestSubscribeRacingCloseSettles(t *testing.T) {
	testlog.Start(t)
	for i := 0; i < 20; i++ {
		n := startNode(t, "/listener", directory.NewStatic())
		done := make(chan struct{})
		var (
			sub *Subscription[stdmsgs.String]
			err error
		)
		go func() {
			defer close(done)
			sub, err = Subscribe(context.Background(), n, "/chatter", stdmsgs.StringCodec)
		}()
		if cerr := n.Close(); cerr != nil {
			t.Fatalf("close node: %v", cerr)
		}
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("subscribe did not return after node close")
		}
		if err != nil {
			continue
		}
		// Subscribed before Close took the lock; Close must have ended it.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_, rerr := sub.Recv(ctx)
		cancel()
		if !errors.Is(rerr, subscriber.ErrClosed) {
			t.Fatalf("round %d: expected closed subscription, got %v", i, rerr)
		}
	}
}
