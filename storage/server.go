package storage

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/protocol"
	"golang.org/x/sync/errgroup"
)

// ServerOptions configures a storage server.
type ServerOptions struct {
	Hostname     string
	Port         int
	DataDir      string
	NSHost       string
	NSPort       int
	Backups      []string // host:port of secondary storage servers to replicate to
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       netlog.Logger
}

// MaxBackups bounds how many secondaries a single storage server fans
// writes out to.
const MaxBackups = 10

func (o *ServerOptions) setDefaults() {
	if o.Hostname == "" {
		o.Hostname = "0.0.0.0"
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = netlog.Null{}
	}
}

// Validate rejects option sets that can't produce a working server.
func (o ServerOptions) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	if o.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if o.NSHost == "" || o.NSPort <= 0 {
		return fmt.Errorf("naming server host/port are required")
	}
	if len(o.Backups) > MaxBackups {
		return fmt.Errorf("at most %d backups are supported, got %d", MaxBackups, len(o.Backups))
	}
	return nil
}

// Server is a storage server: it owns a local data directory, a
// heartbeat reporter that keeps the naming server informed of its
// liveness and load, and a replicator that fans writes out to
// secondaries. Rather than a persistent per-session connection,
// each accepted connection serves exactly one request and is then
// closed, matching the protocol's simple
// request/response cadence instead of a stateful session handshake.
type Server struct {
	options  ServerOptions
	data     *DataDir
	repl     *Replicator
	reporter *HeartbeatReporter
	load     int64 // current in-flight request count, guarded by connMu
	logger   netlog.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates a storage server rooted at options.DataDir.
func NewServer(options ServerOptions) (*Server, error) {
	options.setDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}
	data, err := NewDataDir(options.DataDir)
	if err != nil {
		return nil, err
	}

	parent, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(parent)
	s := &Server{
		options: options,
		data:    data,
		logger:  options.Logger,
		ctx:     ctx,
		cancel:  cancel,
		group:   group,
		conns:   make(map[net.Conn]struct{}),
	}
	s.repl = NewReplicator(options.Backups, options.Logger)
	s.reporter = NewHeartbeatReporter(s, options.NSHost, options.NSPort, options.Logger)
	return s, nil
}

// Listen binds the listening socket, registers with the naming server,
// and starts the accept loop and heartbeat reporter.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.options.Hostname, s.options.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("storage server listen on %s: %w", addr, err)
	}
	s.listener = listener
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.options.Port = tcpAddr.Port // advertise the bound port when 0 was requested
	}
	s.logger.Info("storage server listening on %s", addr)

	paths, err := s.data.Walk()
	if err != nil {
		s.logger.Warn("walking data dir at startup: %v", err)
	}
	if err := s.registerWithNamingServer(paths); err != nil {
		s.logger.Error("initial registration with naming server failed: %v", err)
	}

	s.group.Go(func() error {
		s.reporter.Run(s.ctx)
		return nil
	})

	s.group.Go(func() error {
		s.repl.RunReconnectLoop(s.ctx)
		return nil
	})

	s.group.Go(func() error {
		s.acceptLoop()
		return nil
	})
	return nil
}

// registerWithNamingServer announces this server's paths to the naming
// server. Each attempt gets its own session token purely for this
// server's own logs — it never travels on the wire, since
// SSRegisterMessage's layout is fixed by the protocol — so that
// repeated registrations (e.g. after a naming-server restart) can be
// told apart in the logs.
func (s *Server) registerWithNamingServer(paths []string) error {
	token := uuid.New().String()
	nsAddr := fmt.Sprintf("%s:%d", s.options.NSHost, s.options.NSPort)
	s.logger.Info("registering %d paths with naming server %s (session=%s)", len(paths), nsAddr, token)

	conn, err := net.DialTimeout("tcp", nsAddr, 3*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	c := protocol.NewConn(conn)
	msg := protocol.SSRegisterMessage{Port: uint16(s.options.Port), Paths: paths}
	if err := c.WriteFrame(&protocol.Frame{RequestID: 1, Type: protocol.SSRegister, Payload: msg.Marshal()}); err != nil {
		return err
	}
	_, err = c.ReadFrame()
	if err != nil {
		s.logger.Warn("registration session=%s failed: %v", token, err)
		return err
	}
	s.logger.Info("registration session=%s acknowledged", token)
	return nil
}

// ListenAndServe starts the server and blocks until Stop is called.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	<-s.ctx.Done()
	return nil
}

// Addr returns the bound listening address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("storage server shutting down")
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()

	if err := s.group.Wait(); err != nil {
		s.logger.Error("storage server background task error: %v", err)
	}
	s.logger.Info("storage server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("accept error: %v", err)
				continue
			}
		}
		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.group.Go(func() error {
			s.handleConnection(conn)
			return nil
		})
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
	}()

	c := protocol.NewConn(conn)
	_ = conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
	frame, err := c.ReadFrame()
	if err != nil {
		return
	}

	s.addLoad(1)
	defer s.addLoad(-1)

	_ = conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
	if err := s.dispatch(c, frame); err != nil {
		_ = c.WriteErrorFrame(frame.RequestID, protocol.CodeOf(err))
	}
}

func (s *Server) dispatch(c *protocol.Conn, frame *protocol.Frame) error {
	switch frame.Type {
	case protocol.Read:
		return s.handleRead(c, frame)
	case protocol.Write:
		return s.handleWrite(c, frame)
	case protocol.Create:
		return s.handleCreate(c, frame)
	case protocol.Delete:
		return s.handleDelete(c, frame)
	case protocol.GetFileInfo:
		return s.handleGetFileInfo(c, frame)
	case protocol.Stream:
		return s.handleStream(c, frame)
	case protocol.ReplicateWrite:
		return s.handleReplicateWrite(c, frame)
	case protocol.ReplicateDelete:
		return s.handleReplicateDelete(c, frame)
	default:
		return protocol.WrapOpError("dispatch", "", protocol.ProtocolError)
	}
}

func (s *Server) handleRead(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalReadRequest(frame.Payload)
	if err != nil {
		return err
	}
	data, err := s.data.Read(req.Path, req.Offset, req.Length)
	if err != nil {
		return err
	}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Read, Payload: data})
}

func (s *Server) handleWrite(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalWriteRequest(frame.Payload)
	if err != nil {
		return err
	}
	if err := s.data.Write(req.Path, req.Offset, req.Data); err != nil {
		return err
	}
	s.repl.Replicate(req)
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Write})
}

func (s *Server) handleCreate(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalCreateRequest(frame.Payload)
	if err != nil {
		return err
	}
	if err := s.data.Create(req.Path); err != nil {
		return err
	}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Create})
}

func (s *Server) handleDelete(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalDeleteRequest(frame.Payload)
	if err != nil {
		return err
	}
	if err := s.data.Delete(req.Path); err != nil {
		return err
	}
	s.repl.ReplicateDelete(req.Path)
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Delete})
}

func (s *Server) handleGetFileInfo(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalGetFileInfoRequest(frame.Payload)
	if err != nil {
		return err
	}
	size, err := s.data.Size(req.Path)
	if err != nil {
		return err
	}
	resp := protocol.GetFileInfoResponseMsg{FileSize: size, Permissions: 0o644}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.GetFileInfoResponse, Payload: resp.Marshal()})
}

// handleReplicateWrite applies a write forwarded from a primary,
// without fanning it out further (replication is one level deep).
func (s *Server) handleReplicateWrite(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalWriteRequest(frame.Payload)
	if err != nil {
		return err
	}
	if err := s.data.Write(req.Path, req.Offset, req.Data); err != nil {
		return err
	}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.ReplicateWrite})
}

func (s *Server) handleReplicateDelete(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalDeleteRequest(frame.Payload)
	if err != nil {
		return err
	}
	if err := s.data.Delete(req.Path); err != nil {
		return err
	}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.ReplicateDelete})
}

func (s *Server) addLoad(delta int64) {
	s.connMu.Lock()
	s.load += delta
	s.connMu.Unlock()
}

// Load reports the current in-flight request count, used by the
// heartbeat reporter.
func (s *Server) Load() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return int(s.load)
}
