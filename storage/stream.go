package storage

import (
	"github.com/netfsd/netfsd/protocol"
)

// handleStream serves a STREAM request by pushing successive
// StreamDataChunk frames until the file is exhausted, letting a client
// read a large file without buffering it whole in one frame.
func (s *Server) handleStream(c *protocol.Conn, frame *protocol.Frame) error {
	req, err := protocol.UnmarshalStreamRequest(frame.Payload)
	if err != nil {
		return err
	}

	size, err := s.data.Size(req.Path)
	if err != nil {
		return err
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = protocol.ChunkSize
	}

	if req.MetadataOnly {
		meta := protocol.StreamDataChunk{Offset: req.StartPosition, IsLastChunk: true}
		return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.StreamMetadata, Payload: meta.Marshal()})
	}

	offset := req.StartPosition
	for offset < size {
		remaining := size - offset
		n := uint64(chunkSize)
		if remaining < n {
			n = remaining
		}
		data, err := s.data.Read(req.Path, offset, uint32(n))
		if err != nil {
			return err
		}
		offset += uint64(len(data))
		chunk := protocol.StreamDataChunk{Offset: offset - uint64(len(data)), Data: data, IsLastChunk: offset >= size}
		if err := c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.StreamData, Payload: chunk.Marshal()}); err != nil {
			return err
		}
		if len(data) == 0 {
			break
		}
	}
	return c.WriteFrame(&protocol.Frame{RequestID: frame.RequestID, Type: protocol.StreamEnd})
}
