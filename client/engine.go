package client

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/netfsd/netfsd/protocol"
)

// requestIDCounter produces the wire frame's opaque request_id
// correlator. A process-wide monotonic counter is sufficient since the
// field only needs to disambiguate concurrent requests on one socket.
var requestIDCounter uint32

func nextRequestID() uint32 {
	return atomic.AddUint32(&requestIDCounter, 1)
}

// correlationID returns a fresh UUID used only for log correlation
// across an operation's resolve-then-data-plane hops; it never appears
// on the wire and does not replace the frame's request_id field.
func correlationID() string {
	return uuid.New().String()
}

// Engine is the client's operation engine: it resolves a path against
// the naming server, then connects directly to the storage server that
// owns it for the actual read/write, per the two-hop resolution the
// protocol uses instead of the naming server proxying data. Each
// resolved operation dials its own short-lived connection to the
// storage server rather than drawing from a pool.
type Engine struct {
	config Config
	cache  *readCache
	log    netlog.Logger
	group  singleflightGroup
}

// NewEngine creates an Engine talking to the naming server named in config.
func NewEngine(config Config) (*Engine, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config: config,
		cache:  newReadCache(config.Cache),
		log:    config.Logger,
	}, nil
}

func (e *Engine) nsAddr() string {
	return fmt.Sprintf("%s:%d", e.config.NSHost, e.config.NSPort)
}

// withRetry retries op according to the engine's RetryPolicy, stopping
// early on a non-retryable error.
func (e *Engine) withRetry(op func() error) error {
	var lastErr error
	for attempt := 0; attempt < e.config.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.config.Retry.Delay(attempt - 1))
		}
		lastErr = op()
		if lastErr == nil || !protocol.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// resolve asks the naming server where path lives.
func (e *Engine) resolve(path string) (protocol.LocationResponse, error) {
	conn, err := net.DialTimeout("tcp", e.nsAddr(), e.config.DialTimeout)
	if err != nil {
		return protocol.LocationResponse{}, protocol.WrapOpError("resolve", path, err)
	}
	defer conn.Close()

	c := protocol.NewConn(conn)
	req := protocol.GetLocationRequest{Path: path}
	if err := c.WriteFrame(&protocol.Frame{RequestID: nextRequestID(), Type: protocol.GetLocation, Payload: req.Marshal()}); err != nil {
		return protocol.LocationResponse{}, protocol.WrapOpError("resolve", path, err)
	}
	frame, err := c.ReadFrame()
	if err != nil {
		return protocol.LocationResponse{}, protocol.WrapOpError("resolve", path, err)
	}
	if frame.Type == protocol.Error {
		return protocol.LocationResponse{}, protocol.WrapOpError("resolve", path, protocol.DecodeErrorFrame(frame))
	}
	return protocol.UnmarshalLocationResponse(frame.Payload)
}

// dialSS opens a short-lived connection to a resolved storage server.
func (e *Engine) dialSS(loc protocol.LocationResponse) (*protocol.Conn, net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", loc.Host, loc.Port)
	conn, err := net.DialTimeout("tcp", addr, e.config.DialTimeout)
	if err != nil {
		return nil, nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(e.config.IOTimeout))
	return protocol.NewConn(conn), conn, nil
}

// Read reads length bytes at offset from path, consulting the read
// cache first.
func (e *Engine) Read(path string, offset uint64, length uint32) ([]byte, error) {
	corrID := correlationID()
	if cached, ok := e.cache.Get(path, offset, length); ok {
		e.log.Debug("corr=%s read %s@%d cache hit", corrID, path, offset)
		return cached, nil
	}
	e.log.Debug("corr=%s read %s@%d:%d", corrID, path, offset, length)

	v, err, _ := e.group.Do(fmt.Sprintf("%s@%d:%d", path, offset, length), func() (interface{}, error) {
		var data []byte
		err := e.withRetry(func() error {
			loc, err := e.resolve(path)
			if err != nil {
				return err
			}
			c, conn, err := e.dialSS(loc)
			if err != nil {
				return protocol.WrapOpError("read", path, err)
			}
			defer conn.Close()

			req := protocol.ReadRequest{Path: path, Offset: offset, Length: length}
			if err := c.WriteFrame(&protocol.Frame{RequestID: nextRequestID(), Type: protocol.Read, Payload: req.Marshal()}); err != nil {
				return protocol.WrapOpError("read", path, err)
			}
			frame, err := c.ReadFrame()
			if err != nil {
				return protocol.WrapOpError("read", path, err)
			}
			if frame.Type == protocol.Error {
				return protocol.WrapOpError("read", path, protocol.DecodeErrorFrame(frame))
			}
			data = frame.Payload
			return nil
		})
		return data, err
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)
	e.cache.Put(path, offset, data)
	return data, nil
}

// Write writes data at offset to path.
func (e *Engine) Write(path string, offset uint64, data []byte) error {
	corrID := correlationID()
	e.log.Debug("corr=%s write %s@%d:%d", corrID, path, offset, len(data))
	err := e.withRetry(func() error {
		loc, err := e.resolve(path)
		if err != nil {
			return err
		}
		c, conn, err := e.dialSS(loc)
		if err != nil {
			return protocol.WrapOpError("write", path, err)
		}
		defer conn.Close()

		req := protocol.WriteRequest{Path: path, Offset: offset, Data: data}
		if err := c.WriteFrame(&protocol.Frame{RequestID: nextRequestID(), Type: protocol.Write, Payload: req.Marshal()}); err != nil {
			return protocol.WrapOpError("write", path, err)
		}
		frame, err := c.ReadFrame()
		if err != nil {
			return protocol.WrapOpError("write", path, err)
		}
		if frame.Type == protocol.Error {
			return protocol.WrapOpError("write", path, protocol.DecodeErrorFrame(frame))
		}
		return nil
	})
	if err == nil {
		e.cache.Invalidate(path)
	}
	return err
}

// Create registers path with the naming server and creates it on a
// storage server chosen by the naming server's router.
func (e *Engine) Create(path string) error {
	e.log.Debug("corr=%s create %s", correlationID(), path)
	return e.withRetry(func() error {
		conn, err := net.DialTimeout("tcp", e.nsAddr(), e.config.DialTimeout)
		if err != nil {
			return protocol.WrapOpError("create", path, err)
		}
		defer conn.Close()

		c := protocol.NewConn(conn)
		req := protocol.CreateRequest{Path: path}
		if err := c.WriteFrame(&protocol.Frame{RequestID: nextRequestID(), Type: protocol.Create, Payload: req.Marshal()}); err != nil {
			return protocol.WrapOpError("create", path, err)
		}
		frame, err := c.ReadFrame()
		if err != nil {
			return protocol.WrapOpError("create", path, err)
		}
		if frame.Type == protocol.Error {
			return protocol.WrapOpError("create", path, protocol.DecodeErrorFrame(frame))
		}
		return nil
	})
}

// Delete removes path. Like Create, this goes to the naming server
// rather than straight to the owning storage server, so the namespace
// entry and the on-disk file are removed together.
func (e *Engine) Delete(path string) error {
	corrID := correlationID()
	e.log.Debug("corr=%s delete %s", corrID, path)
	err := e.withRetry(func() error {
		conn, err := net.DialTimeout("tcp", e.nsAddr(), e.config.DialTimeout)
		if err != nil {
			return protocol.WrapOpError("delete", path, err)
		}
		c := protocol.NewConn(conn)
		defer conn.Close()

		req := protocol.DeleteRequest{Path: path}
		if err := c.WriteFrame(&protocol.Frame{RequestID: nextRequestID(), Type: protocol.Delete, Payload: req.Marshal()}); err != nil {
			return protocol.WrapOpError("delete", path, err)
		}
		frame, err := c.ReadFrame()
		if err != nil {
			return protocol.WrapOpError("delete", path, err)
		}
		if frame.Type == protocol.Error {
			return protocol.WrapOpError("delete", path, protocol.DecodeErrorFrame(frame))
		}
		return nil
	})
	if err == nil {
		e.cache.Invalidate(path)
	}
	return err
}

// GetFileInfo returns path's size and permissions from its owning
// storage server.
func (e *Engine) GetFileInfo(path string) (protocol.GetFileInfoResponseMsg, error) {
	e.log.Debug("corr=%s stat %s", correlationID(), path)
	var out protocol.GetFileInfoResponseMsg
	err := e.withRetry(func() error {
		loc, err := e.resolve(path)
		if err != nil {
			return err
		}
		c, conn, err := e.dialSS(loc)
		if err != nil {
			return protocol.WrapOpError("stat", path, err)
		}
		defer conn.Close()

		req := protocol.GetFileInfoRequest{Path: path}
		if err := c.WriteFrame(&protocol.Frame{RequestID: nextRequestID(), Type: protocol.GetFileInfo, Payload: req.Marshal()}); err != nil {
			return protocol.WrapOpError("stat", path, err)
		}
		frame, err := c.ReadFrame()
		if err != nil {
			return protocol.WrapOpError("stat", path, err)
		}
		if frame.Type == protocol.Error {
			return protocol.WrapOpError("stat", path, protocol.DecodeErrorFrame(frame))
		}
		out, err = protocol.UnmarshalGetFileInfoResponse(frame.Payload)
		return err
	})
	return out, err
}
