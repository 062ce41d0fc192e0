package client

import (
	"fmt"
	"net"
	"time"

	"github.com/netfsd/netfsd/protocol"
)

// ChunkHandler receives one streamed chunk. Returning an error aborts
// the stream.
type ChunkHandler func(offset uint64, data []byte, isLast bool) error

// Stream reads path in chunkSize pieces starting at startPosition,
// invoking handler for each chunk as it arrives instead of buffering
// the whole file, the way the storage server pushes StreamDataChunk
// frames until it reaches StreamEnd.
func (e *Engine) Stream(path string, startPosition uint64, chunkSize uint32, handler ChunkHandler) error {
	if chunkSize == 0 {
		chunkSize = protocol.ChunkSize
	}

	loc, err := e.resolve(path)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", loc.Host, loc.Port)
	conn, err := net.DialTimeout("tcp", addr, e.config.DialTimeout)
	if err != nil {
		return protocol.WrapOpError("stream", path, err)
	}
	defer conn.Close()

	c := protocol.NewConn(conn)
	req := protocol.StreamRequest{Path: path, StartPosition: startPosition, ChunkSize: chunkSize}
	if err := c.WriteFrame(&protocol.Frame{RequestID: nextRequestID(), Type: protocol.Stream, Payload: req.Marshal()}); err != nil {
		return protocol.WrapOpError("stream", path, err)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(e.config.IOTimeout))
		frame, err := c.ReadFrame()
		if err != nil {
			return protocol.WrapOpError("stream", path, err)
		}
		switch frame.Type {
		case protocol.Error:
			return protocol.WrapOpError("stream", path, protocol.DecodeErrorFrame(frame))
		case protocol.StreamEnd:
			return nil
		case protocol.StreamData:
			chunk, err := protocol.UnmarshalStreamDataChunk(frame.Payload)
			if err != nil {
				return protocol.WrapOpError("stream", path, err)
			}
			if err := handler(chunk.Offset, chunk.Data, chunk.IsLastChunk); err != nil {
				return err
			}
		default:
			return protocol.WrapOpError("stream", path, protocol.ProtocolError)
		}
	}
}
