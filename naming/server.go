package naming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/protocol"
	"golang.org/x/sync/errgroup"
)

// ServerOptions configures a naming server, following the usual
// ServerOptions/setDefaults pattern.
type ServerOptions struct {
	Hostname     string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       netlog.Logger

	// PoolSize bounds the router's NS→SS connection pool; the
	// --cache-size/-c CLI flag sets this. Zero uses MaxPooledConns.
	PoolSize int
}

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

// Validate rejects options that can't produce a working server.
func (o ServerOptions) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	return nil
}

// Server is the naming server: it owns the directory tree, the health
// registry of storage servers, and the router used to forward CREATE and
// DELETE requests to a storage server. READ and WRITE frames are not
// forwarded; the dispatcher answers them with a PROTOCOL_ERROR, and
// clients send them directly to the storage server named by
// GET_LOCATION. It follows the usual accept-loop/per-connection-goroutine
// server shape, dispatching on frame type instead of a single fixed
// request kind.
type Server struct {
	options ServerOptions
	tree    *Tree
	health  *HealthRegistry
	router  *Router
	logger  netlog.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates a naming server with its own tree, health registry,
// and router.
func NewServer(options ServerOptions) (*Server, error) {
	options.setDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}

	parent, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(parent)
	health := NewHealthRegistry(options.Logger)
	return &Server{
		options: options,
		tree:    NewTree(),
		health:  health,
		router:  NewRouter(health, options.Logger, options.PoolSize),
		logger:  options.Logger,
		ctx:     ctx,
		cancel:  cancel,
		group:   group,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Tree exposes the server's directory tree, e.g. for metrics or tests.
func (s *Server) Tree() *Tree { return s.tree }

// Health exposes the server's storage-server health registry.
func (s *Server) Health() *HealthRegistry { return s.health }

// Listen binds the listening socket and starts the accept loop and the
// health sweeper.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.options.Hostname, s.options.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("naming server listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.logger.Info("naming server listening on %s", addr)

	s.group.Go(func() error {
		return s.health.RunSweeper(s.ctx)
	})

	s.group.Go(func() error {
		s.acceptLoop()
		return nil
	})
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

// Stop shuts the server down, closing the listener and every open
// connection, then waits for in-flight handlers to return.
func (s *Server) Stop() error {
	s.logger.Info("naming server shutting down")
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
		s.logger.Error("naming server background task error: %v", err)
	}
	s.logger.Info("naming server stopped")
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

	remote := conn.RemoteAddr().String()
	s.logger.Debug("connection from %s", remote)
	c := protocol.NewConn(conn)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))
		frame, err := c.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection closed: %s", remote)
			} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.logger.Debug("connection timeout: %s", remote)
			} else {
				s.logger.Error("read error from %s: %v", remote, err)
			}
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
		if err := s.dispatch(c, conn, frame); err != nil {
			s.logger.Error("dispatch error from %s: %v", remote, err)
			_ = c.WriteErrorFrame(frame.RequestID, protocol.CodeOf(err))
		}
	}
}

// dispatch handles one request frame and writes its response (or error
// frame) before returning.
func (s *Server) dispatch(c *protocol.Conn, conn net.Conn, frame *protocol.Frame) error {
	switch frame.Type {
	case protocol.GetLocation:
		return s.handleGetLocation(c, frame)
	case protocol.SSRegister:
		return s.handleSSRegister(c, conn, frame)
	case protocol.Heartbeat:
		return s.handleHeartbeat(c, conn, frame)
	case protocol.Create:
		return s.handleCreate(c, frame)
	case protocol.Delete:
		return s.handleDelete(c, frame)
	default:
		return protocol.WrapOpError("dispatch", "", protocol.ProtocolError)
	}
}

func (s *Server) handleGetLocation(c *protocol.Conn, frame *protocol.Frame) error {
	req := protocol.UnmarshalGetLocationRequest(frame.Payload)
	meta, err := s.tree.GetMetadata(req.Path)
	if err != nil {
		return err
	}
	resp := protocol.LocationResponse{Host: meta.SSHost, Port: meta.SSPort}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Location, Payload: resp.Marshal()})
}

func (s *Server) handleSSRegister(c *protocol.Conn, conn net.Conn, frame *protocol.Frame) error {
	msg, err := protocol.UnmarshalSSRegisterMessage(frame.Payload)
	if err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	for _, p := range msg.Paths {
		if err := s.tree.RegisterFile(p, FileMetadata{SSHost: host, SSPort: msg.Port}); err != nil {
			s.logger.Warn("register %s from %s:%d failed: %v", p, host, msg.Port, err)
		}
	}
	s.health.ReceiveHeartbeat(host, msg.Port, 0)
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.SSRegisterAck})
}

// handleHeartbeat records liveness/load for the reporting storage
// server. The host is taken from the TCP peer address rather than the
// message's self-reported Host field, matching handleSSRegister: a
// server bound to a wildcard address (e.g. 0.0.0.0) would otherwise
// advertise an address nothing else on the network can dial back to.
func (s *Server) handleHeartbeat(c *protocol.Conn, conn net.Conn, frame *protocol.Frame) error {
	msg, err := protocol.UnmarshalHeartbeatMessage(frame.Payload)
	if err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	var port uint16
	fmt.Sscanf(msg.Port, "%d", &port)
	s.health.ReceiveHeartbeat(host, port, int(msg.Load))
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Heartbeat})
}

// handleCreate picks the least-loaded storage server, forwards the
// file creation to it, and registers the path against that server only
// once the storage server has confirmed the file exists on disk.
func (s *Server) handleCreate(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalCreateRequest(frame.Payload)
	if err != nil {
		return err
	}

	target, err := s.router.Select()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", target.Host, target.Port)

	if err := s.forwardToStorageServer(addr, protocol.Create, req.Marshal(), protocol.Create); err != nil {
		return err
	}

	if err := s.tree.RegisterFile(req.Path, FileMetadata{SSHost: target.Host, SSPort: target.Port}); err != nil {
		return err
	}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Create})
}

// handleDelete forwards a delete to the path's owning storage server
// and only removes the namespace entry once that succeeds.
func (s *Server) handleDelete(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalDeleteRequest(frame.Payload)
	if err != nil {
		return err
	}

	meta, err := s.tree.GetMetadata(req.Path)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", meta.SSHost, meta.SSPort)

	if err := s.forwardToStorageServer(addr, protocol.Delete, req.Marshal(), protocol.Delete); err != nil {
		return err
	}

	if err := s.tree.Delete(req.Path); err != nil {
		return err
	}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.Delete})
}

// forwardToStorageServer acquires a connection to addr through the
// router, sends a frame of the given type and payload, and waits for a
// matching non-error response. The storage server closes its end of
// the connection after one request/response (storage/server.go's
// per-request handling), so the connection is always invalidated
// rather than returned to the pool for reuse.
func (s *Server) forwardToStorageServer(addr string, sendType protocol.MessageType, payload []byte, wantType protocol.MessageType) error {
	conn, err := s.router.Acquire(addr)
	if err != nil {
		return protocol.WrapOpError("forward", addr, err)
	}
	defer s.router.Invalidate(addr, conn)

	c := protocol.NewConn(conn)
	_ = conn.SetDeadline(time.Now().Add(DialTimeout * 2))

	if err := c.WriteFrame(&protocol.Frame{RequestID: 1, Type: sendType, Payload: payload}); err != nil {
		return protocol.WrapOpError("forward", addr, err)
	}
	resp, err := c.ReadFrame()
	if err != nil {
		return protocol.WrapOpError("forward", addr, err)
	}

	if resp.Type == protocol.Error {
		return protocol.DecodeErrorFrame(resp)
	}
	if resp.Type != wantType {
		return protocol.ProtocolError
	}
	return nil
}
