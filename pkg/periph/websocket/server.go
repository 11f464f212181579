// Package websocket serves the serial byte stream to one WebSocket client
// at a time. Every TX span is sent as a binary message and every received
// message is fed into RX.
package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/shellport/pkg/periph"
)

// DefaultPath is the HTTP path of the WebSocket endpoint.
const DefaultPath = "/shell"

type peer struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() { close(p.done) })
}

// hub implements periph.PacketReadWriter over the current peer.
type hub struct {
	lock      sync.Mutex
	peer      *peer
	connCh    chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newHub() *hub {
	return &hub{
		connCh:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

func (h *hub) current() *peer {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.peer
}

// attach makes p the current peer, a previous peer is disconnected.
func (h *hub) attach(p *peer) {
	h.lock.Lock()
	old := h.peer
	h.peer = p
	h.lock.Unlock()
	if old != nil {
		glog.Info("websocket peer replaced")
		old.close()
	}
	select {
	case h.connCh <- struct{}{}:
	default:
	}
}

func (h *hub) detach(p *peer) {
	h.lock.Lock()
	if h.peer == p {
		h.peer = nil
	}
	h.lock.Unlock()
	p.close()
}

// ReadPacket implements periph.PacketReader. It waits for a peer and
// survives disconnects.
func (h *hub) ReadPacket() ([]byte, error) {
	for {
		p := h.current()
		if p == nil {
			select {
			case <-h.connCh:
				continue
			case <-h.closeCh:
				return nil, io.EOF
			}
		}
		var pkt []byte
		if err := websocket.Message.Receive(p.conn, &pkt); err != nil {
			glog.V(2).Infof("websocket peer gone: %v", err)
			h.detach(p)
			continue
		}
		return pkt, nil
	}
}

// WritePacket implements periph.PacketWriter. Without a peer the packet is
// discarded like bytes sent over an unplugged wire.
func (h *hub) WritePacket(pkt []byte) error {
	p := h.current()
	if p == nil {
		glog.V(4).Infof("websocket: no peer, discard %d bytes", len(pkt))
		return nil
	}
	return websocket.Message.Send(p.conn, pkt)
}

func (h *hub) Close() error {
	h.closeOnce.Do(func() { close(h.closeCh) })
	if p := h.current(); p != nil {
		h.detach(p)
	}
	return nil
}

// Server is a periph.Driver accepting WebSocket clients.
type Server struct {
	*periph.Bridge
	Addr string
	Path string

	hub      *hub
	listener net.Listener
}

// New creates a Server listening on addr, e.g. ":8080".
func New(addr, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	h := newHub()
	return &Server{Bridge: periph.NewBridge(h), Addr: addr, Path: path, hub: h}
}

// Listen opens the listener. Run calls it if it is not called before.
func (s *Server) Listen() (net.Addr, error) {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return nil, err
		}
		s.listener = ln
	}
	return s.listener.Addr(), nil
}

func (s *Server) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	p := &peer{conn: conn, done: make(chan struct{})}
	glog.Infof("websocket peer %s connected", conn.Request().RemoteAddr)
	s.hub.attach(p)
	<-p.done
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(s.Path, websocket.Handler(s.serve))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			glog.Errorf("websocket server: %v", err)
		}
	}()
	glog.Infof("websocket listening on ws://%s%s", addr, s.Path)
	err = s.Bridge.Run(ctx)
	srv.Close()
	return err
}
