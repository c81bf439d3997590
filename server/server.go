package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/cors"

	"brokerly.dev/broker"
	"brokerly.dev/config"
	"brokerly.dev/store"
	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/context"
	"brokerly.dev/utils/log"
	"brokerly.dev/version"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// relayInfo is the NIP-11-shaped relay information document served at
// "/" for clients that send Accept: application/nostr+json.
type relayInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Pubkey        string   `json:"pubkey,omitempty"`
	Contact       string   `json:"contact,omitempty"`
	SupportedNIPs []int    `json:"supported_nips"`
	Software      string   `json:"software"`
	Version       string   `json:"version"`
	Limitation    limitDoc `json:"limitation"`
}

type limitDoc struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	AuthRequired     bool `json:"auth_required"`
	RestrictedWrites bool `json:"restricted_writes"`
}

// Server is the relay's HTTP/WebSocket front end, accepting connections
// and handing each one to its own conn.
type Server struct {
	Ctx    context.T
	Cancel context.F

	cfg    *config.C
	store  *store.Store
	writer *broker.Writer

	info       relayInfo
	httpServer *http.Server
}

// NewServer builds a Server over an already-running Writer and Store.
func NewServer(ctx context.T, cancel context.F, cfg *config.C, st *store.Store, w *broker.Writer) *Server {
	return &Server{
		Ctx:    ctx,
		Cancel: cancel,
		cfg:    cfg,
		store:  st,
		writer: w,
		info: relayInfo{
			Name:          cfg.RelayName,
			Description:   cfg.RelayDescription,
			Pubkey:        cfg.RelayPubkey,
			Contact:       cfg.RelayContact,
			SupportedNIPs: []int{1, 5, 11, 26},
			Software:      "https://brokerly.dev",
			Version:       version.V,
			Limitation: limitDoc{
				MaxMessageLength: int(cfg.MaxMessageSize),
				RestrictedWrites: len(cfg.Allowlist) > 0,
			},
		},
	}
}

// ServeHTTP dispatches the relay information document, the WebSocket
// upgrade, or a plaintext hint for any other request to "/", following
// the teacher's root-path branching on Accept/Upgrade headers
// (app/realy/server.go). Any other path gets a 404.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("Accept") == "application/nostr+json" {
		s.handleRelayInfo(w, r)
		return
	}
	if r.Header.Get("Upgrade") == "websocket" {
		s.handleWebsocket(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Please use a Nostr client to connect.\n"))
}

func (s *Server) handleRelayInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/nostr+json")
	if err := json.NewEncoder(w).Encode(s.info); chk.T(err) {
		log.W.F("encoding relay info: %v", err)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if chk.E(err) {
		return
	}
	sock := newSocket(wsConn, r)
	log.D.F("%s: connected", sock.remote)
	c := newConn(sock, s.writer, s.store)
	c.run(s.Ctx, wsConn)
	log.D.F("%s: disconnected", sock.remote)
	chk.T(wsConn.Close())
}

// Start listens and serves until Shutdown is called or the listener
// errors, following the teacher's listen/serve shape
// (app/realy/server.go Start).
func (s *Server) Start(started ...chan bool) error {
	addr := net.JoinHostPort(s.cfg.Listen, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.I.F("listening at %s", addr)
	s.httpServer = &http.Server{
		Handler:           cors.Default().Handler(s),
		Addr:              addr,
		ReadHeaderTimeout: 7 * time.Second,
		IdleTimeout:       28 * time.Second,
	}
	for _, c := range started {
		close(c)
	}
	if err = s.httpServer.Serve(ln); errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown cancels the server's context and stops accepting connections.
func (s *Server) Shutdown() {
	log.I.Ln("shutting down relay listener")
	s.Cancel()
	if s.httpServer != nil {
		chk.T(s.httpServer.Shutdown(s.Ctx))
	}
}
