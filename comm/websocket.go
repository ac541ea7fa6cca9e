package comm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPath       = "/polyredist"
	wsInboxDepth = 16
	wsRedialWait = 50 * time.Millisecond
)

type wsPeer struct {
	rank  int
	conn  *websocket.Conn
	wmu   sync.Mutex
	inbox chan message
	done  chan struct{}
	err   error
}

// WSGroup is a Group over websocket connections, one per pair of ranks.
// Rank i serves connections from every rank above it and dials every rank
// below it. Each message is one binary frame: a little endian uint16 tag
// followed by the payload.
type WSGroup struct {
	rank   int
	peers  []*wsPeer
	srv    *http.Server
	closed chan struct{}
	once   sync.Once
}

// NewWSGroup joins the group described by addrs, the host:port of every rank.
// ln, when not nil, is the already open listener for addrs[rank]. It returns
// once a connection to every other rank is up.
func NewWSGroup(ctx context.Context, rank int, addrs []string, ln net.Listener) (*WSGroup, error) {
	size := len(addrs)
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d of %d addresses", ErrBadRank, rank, size)
	}
	g := &WSGroup{
		rank:   rank,
		peers:  make([]*wsPeer, size),
		closed: make(chan struct{}),
	}
	var (
		mu       sync.Mutex
		accepted = make(chan int, size)
		err      error
	)
	if ln == nil {
		if ln, err = net.Listen("tcp", addrs[rank]); err != nil {
			return nil, fmt.Errorf("rank %d listening on %s: %w", rank, addrs[rank], err)
		}
	}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Logger.Warn("websocket upgrade failed", "rank", rank, "err", err)
			return
		}
		peer, err := readHello(conn)
		if err == nil && (peer <= rank || peer >= size) {
			err = fmt.Errorf("%w: hello from rank %d at rank %d", ErrBadRank, peer, rank)
		}
		mu.Lock()
		if err == nil && g.peers[peer] != nil {
			err = fmt.Errorf("duplicate connection from rank %d", peer)
		}
		if err != nil {
			mu.Unlock()
			Logger.Warn("rejecting connection", "rank", rank, "err", err)
			conn.Close()
			return
		}
		g.peers[peer] = newWSPeer(peer, conn)
		mu.Unlock()
		accepted <- peer
	})
	g.srv = &http.Server{Handler: mux}
	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("websocket server stopped", "rank", rank, "err", err)
		}
	}()

	for peer := 0; peer < rank; peer++ {
		conn, err := dialPeer(ctx, rank, addrs[peer])
		if err != nil {
			g.Close()
			return nil, err
		}
		mu.Lock()
		g.peers[peer] = newWSPeer(peer, conn)
		mu.Unlock()
	}
	for waiting := size - 1 - rank; waiting > 0; waiting-- {
		select {
		case <-accepted:
		case <-ctx.Done():
			g.Close()
			return nil, fmt.Errorf("rank %d waiting for %d peers: %w", rank, waiting, ctx.Err())
		}
	}
	for _, p := range g.peers {
		if p != nil {
			go g.read(p)
		}
	}
	Logger.Debug("websocket group up", "rank", rank, "size", size)
	return g, nil
}

func newWSPeer(rank int, conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		rank:  rank,
		conn:  conn,
		inbox: make(chan message, wsInboxDepth),
		done:  make(chan struct{}),
	}
}

func dialPeer(ctx context.Context, rank int, addr string) (*websocket.Conn, error) {
	url := "ws://" + addr + wsPath
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			hello := frame(TagHello, EncodeInt64s([]int64{int64(rank)}))
			if err = conn.WriteMessage(websocket.BinaryMessage, hello); err != nil {
				conn.Close()
				return nil, fmt.Errorf("hello to %s: %w", addr, err)
			}
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rank %d dialing %s: %w (last error %v)", rank, addr, ctx.Err(), err)
		case <-time.After(wsRedialWait):
		}
	}
}

func readHello(conn *websocket.Conn) (int, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	tag, payload, err := unframe(data)
	if err != nil {
		return 0, err
	}
	if err = checkTag(-1, TagHello, tag); err != nil {
		return 0, err
	}
	vals, err := DecodeInt64s(payload)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("%w: hello payload of %d bytes", ErrMalformed, len(payload))
	}
	return int(vals[0]), nil
}

func frame(tag Tag, payload []byte) []byte {
	buf := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(buf, uint16(tag))
	copy(buf[2:], payload)
	return buf
}

func unframe(data []byte) (Tag, []byte, error) {
	if len(data) < 2 {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes", ErrMalformed, len(data))
	}
	return Tag(binary.LittleEndian.Uint16(data)), data[2:], nil
}

func (g *WSGroup) read(p *wsPeer) {
	defer close(p.done)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.err = err
			return
		}
		tag, payload, err := unframe(data)
		if err != nil {
			p.err = err
			return
		}
		select {
		case p.inbox <- message{tag: tag, payload: payload}:
		case <-g.closed:
			return
		}
	}
}

func (g *WSGroup) Rank() int { return g.rank }

func (g *WSGroup) Size() int { return len(g.peers) }

func (g *WSGroup) Send(ctx context.Context, dst int, tag Tag, payload []byte) error {
	if err := checkPeer(g, dst); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sending %v to rank %d: %w", tag, dst, err)
	}
	p := g.peers[dst]
	p.wmu.Lock()
	defer p.wmu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, frame(tag, payload)); err != nil {
		return fmt.Errorf("%w: sending %v to rank %d: %v", ErrPeerClosed, tag, dst, err)
	}
	return nil
}

func (g *WSGroup) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	if err := checkPeer(g, src); err != nil {
		return nil, err
	}
	p := g.peers[src]
	accept := func(msg message) ([]byte, error) {
		if err := checkTag(src, tag, msg.tag); err != nil {
			return nil, err
		}
		return msg.payload, nil
	}
	select {
	case msg := <-p.inbox:
		return accept(msg)
	case <-p.done:
		select {
		case msg := <-p.inbox:
			return accept(msg)
		default:
		}
		return nil, fmt.Errorf("%w: receiving %v from rank %d: %v", ErrPeerClosed, tag, src, p.err)
	case <-g.closed:
		return nil, fmt.Errorf("%w: rank %d is closed", ErrPeerClosed, g.rank)
	case <-ctx.Done():
		return nil, fmt.Errorf("receiving %v from rank %d: %w", tag, src, ctx.Err())
	}
}

func (g *WSGroup) Barrier(ctx context.Context) error { return linearBarrier(ctx, g) }

func (g *WSGroup) Close() (err error) {
	g.once.Do(func() {
		close(g.closed)
		for _, p := range g.peers {
			if p == nil {
				continue
			}
			p.wmu.Lock()
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			p.wmu.Unlock()
			p.conn.Close()
		}
		err = g.srv.Close()
	})
	return
}
