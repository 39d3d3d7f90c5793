package handler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/config"
	"github.com/openclaw/pairing-relay/internal/model"
)

// wsPeer adapts a WebSocket to model.Conn. Writes go through a buffered
// queue drained by writePump, so Send never blocks the hub loop.
type wsPeer struct {
	id   string
	role model.Role
	conn *websocket.Conn

	send    chan []byte
	closing chan struct{}
	done    chan struct{}
	live    atomic.Bool

	closeOnce   sync.Once
	closeCode   model.CloseCode
	closeReason string

	pingInterval time.Duration
}

func newPeer(conn *websocket.Conn, role model.Role, queueSize int, pingInterval time.Duration) *wsPeer {
	p := &wsPeer{
		id:           uuid.NewString(),
		role:         role,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
	}
	p.live.Store(true)
	return p
}

func (p *wsPeer) ID() string { return p.id }

func (p *wsPeer) Live() bool { return p.live.Load() }

func (p *wsPeer) Send(payload []byte) bool {
	if !p.live.Load() {
		return false
	}
	select {
	case p.send <- payload:
		return true
	default:
		return false
	}
}

// Close flushes what is already queued, then sends a close frame. Only the
// first call has any effect.
func (p *wsPeer) Close(code model.CloseCode, reason string) {
	p.closeOnce.Do(func() {
		p.closeCode = code
		p.closeReason = reason
		p.live.Store(false)
		close(p.closing)
	})
}

func (p *wsPeer) writePump() {
	ticker := time.NewTicker(p.pingInterval)
	defer func() {
		ticker.Stop()
		p.live.Store(false)
		p.conn.Close()
		close(p.done)
	}()

	for {
		select {
		case msg := <-p.send:
			if err := p.write(msg); err != nil {
				log.Debug().Err(err).Str("connId", p.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.WSWriteWait)); err != nil {
				log.Debug().Err(err).Str("connId", p.id).Msg("websocket ping failed")
				return
			}
		case <-p.closing:
			p.flush()
			_ = p.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(int(p.closeCode), p.closeReason),
				time.Now().Add(config.WSWriteWait),
			)
			return
		}
	}
}

func (p *wsPeer) write(msg []byte) error {
	_ = p.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
	return p.conn.WriteMessage(websocket.TextMessage, msg)
}

func (p *wsPeer) flush() {
	for {
		select {
		case msg := <-p.send:
			if err := p.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
