package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"brokerly.dev/broker"
	"brokerly.dev/event"
	"brokerly.dev/filter"
	"brokerly.dev/store"
	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/context"
	"brokerly.dev/utils/log"
)

// pingInterval is how often a connection is pinged to detect a dead
// peer. idleTimeout is how long a connection may go without sending a
// text or binary frame before the Connection Handler disconnects it;
// ping and pong control frames from the client do not reset it.
const (
	pingInterval = 5 * time.Minute
	idleTimeout  = 20 * time.Minute
)

// socket is the minimal surface conn needs from a websocket connection,
// matching the teacher's ws.Listener write-serialization pattern
// (protocol/ws/listener.go): the mutex keeps text frames and pings from
// interleaving. Query workers never write to it; they hand rows to the
// connection loop, which does all the writing.
type socket struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	remote string
}

func newSocket(conn *websocket.Conn, r *http.Request) *socket {
	return &socket{conn: conn, remote: remoteAddr(r)}
}

func (s *socket) writeText(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.conn.WriteMessage(websocket.TextMessage, p)
	if err != nil && strings.Contains(err.Error(), "close sent") {
		return nil
	}
	return err
}

func (s *socket) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// conn runs one client connection's cooperative event loop: it
// interleaves inbound frames, broadcast deliveries, historical query
// results, notices from the Writer, and periodic pings, all on one
// goroutine so a single connection never needs more than one outbound
// writer.
type conn struct {
	sock   *socket
	writer *broker.Writer
	store  *store.Store

	busID uint64
	busCh <-chan *event.E

	cancels *cancelPlane
	subs    map[string]*filter.Subscription

	notices chan broker.Notice
	results chan queryResult
	frames  chan []byte
	readErr chan error
}

func newConn(sock *socket, w *broker.Writer, st *store.Store) *conn {
	busID, busCh := w.Bus.Subscribe()
	return &conn{
		sock:    sock,
		writer:  w,
		store:   st,
		busID:   busID,
		busCh:   busCh,
		cancels: newCancelPlane(),
		subs:    map[string]*filter.Subscription{},
		notices: make(chan broker.Notice, 32),
		results: make(chan queryResult, 256),
		frames:  make(chan []byte, 16),
		readErr: make(chan error, 1),
	}
}

// run drives the connection until it closes, the read goroutine errors,
// or ctx is cancelled. It does not return until cleanup has unsubscribed
// from the bus and cancelled every open subscription's query worker.
func (c *conn) run(ctx context.T, wsConn *websocket.Conn) {
	defer c.writer.Bus.Unsubscribe(c.busID)
	defer c.cancels.CancelAll()

	go c.readLoop(wsConn)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.readErr:
			if err != nil {
				log.D.F("%s: read error: %v", c.sock.remote, err)
			}
			return
		case raw := <-c.frames:
			idle.Reset(idleTimeout)
			c.handleFrame(ctx, raw)
		case e, ok := <-c.busCh:
			if !ok {
				if msg, err := noticeMessage("resync required: subscriber lagged"); err == nil {
					c.send(msg)
				}
				return
			}
			c.deliverLive(e)
		case qr := <-c.results:
			c.deliverQueryResult(qr)
		case n := <-c.notices:
			if msg, err := noticeMessage(n.Message); err == nil {
				c.send(msg)
			}
		case <-ping.C:
			if err := c.sock.ping(); chk.T(err) {
				return
			}
		case <-idle.C:
			log.D.F("%s: idle timeout, disconnecting", c.sock.remote)
			return
		}
	}
}

// readLoop reads frames off the websocket connection and forwards them
// to frames; it runs on its own goroutine because websocket reads block,
// and the connection loop must stay free to service the other sources.
func (c *conn) readLoop(wsConn *websocket.Conn) {
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			c.readErr <- err
			return
		}
		c.frames <- data
	}
}

func (c *conn) handleFrame(ctx context.T, raw []byte) {
	msg, err := parseClientMessage(raw)
	if err != nil {
		if n, nerr := noticeMessage("parse: " + err.Error()); nerr == nil {
			c.send(n)
		}
		return
	}
	switch msg.Kind {
	case msgEvent:
		c.writer.In <- broker.Submission{Event: msg.Event, Notice: c.notices}
	case msgReq:
		c.handleReq(ctx, msg.SubID, msg.Filters)
	case msgClose:
		c.cancels.Cancel(msg.SubID)
		delete(c.subs, msg.SubID)
	}
}

func (c *conn) handleReq(ctx context.T, subID string, filters []*filter.F) {
	sub := &filter.Subscription{SubID: subID, Filters: filters}
	c.subs[subID] = sub
	cancelled := c.cancels.Open(subID)
	go runQueryWorker(ctx, c.store, sub, cancelled, c.results)
}

func (c *conn) deliverQueryResult(qr queryResult) {
	sub, ok := c.subs[qr.subID]
	if !ok {
		return
	}
	if qr.done {
		if qr.err != nil {
			log.W.F("sub %s: query error: %v", qr.subID, qr.err)
		}
		if msg, err := eoseMessage(qr.subID); err == nil {
			c.send(msg)
		}
		_ = sub
		return
	}
	if msg, err := eventMessage(qr.subID, qr.row.Event); err == nil {
		c.send(msg)
	}
}

// deliverLive tests a freshly published event against every live
// subscription this connection holds, using the same matching semantics
// the Query Compiler encodes for historical replay.
func (c *conn) deliverLive(e *event.E) {
	for subID, sub := range c.subs {
		if sub.Matches(e) {
			if msg, err := eventMessage(subID, e); err == nil {
				c.send(msg)
			}
		}
	}
}

func (c *conn) send(msg []byte) {
	if err := c.sock.writeText(msg); chk.T(err) {
		log.D.F("%s: write error: %v", c.sock.remote, err)
	}
}
