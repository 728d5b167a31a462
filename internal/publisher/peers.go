package publisher

import (
	"net"
	"sort"
	"time"

	"github.com/danmuck/tcpros/internal/protocol/session"
)

// PeerInfo describes one live subscriber connection.
type PeerInfo struct {
	session.Info
	CallerID    string    `json:"caller_id"`
	ConnectedAt time.Time `json:"connected_at"`
	Sent        uint64    `json:"sent"`
}

type peer struct {
	addr        string
	callerID    string
	conn        net.Conn
	life        *session.Lifecycle
	connectedAt time.Time
	sent        uint64
}

func (p *peer) close() error {
	p.life.Close()
	return p.conn.Close()
}

func (p *peer) info() PeerInfo {
	return PeerInfo{
		Info:        p.life.Snapshot(),
		CallerID:    p.callerID,
		ConnectedAt: p.connectedAt,
		Sent:        p.sent,
	}
}

// peerSet is the live set keyed by remote address. Callers hold the
// stream's mutex.
type peerSet map[string]*peer

func (s peerSet) addrs() []string {
	out := make([]string, 0, len(s))
	for addr := range s {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func (s peerSet) infos() []PeerInfo {
	out := make([]PeerInfo, 0, len(s))
	for _, p := range s {
		out = append(out, p.info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Peer < out[j].Peer
	})
	return out
}
