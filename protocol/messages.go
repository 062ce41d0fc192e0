package protocol

// ReadRequest is the payload of a READ frame.
type ReadRequest struct {
	Path   string
	Offset uint64
	Length uint32
}

func (m ReadRequest) Marshal() []byte {
	w := NewByteWriter(MaxPathLen + 12)
	w.WriteFixedString(m.Path, MaxPathLen)
	w.WriteUint64(m.Offset)
	w.WriteUint32(m.Length)
	return w.Bytes()
}

func UnmarshalReadRequest(payload []byte) (ReadRequest, error) {
	r := NewByteReader(payload)
	m := ReadRequest{
		Path:   r.ReadFixedString(MaxPathLen),
		Offset: r.ReadUint64(),
		Length: r.ReadUint32(),
	}
	return m, r.Err()
}

// WriteRequest is the payload of a WRITE frame; Data follows the fixed
// header fields.
type WriteRequest struct {
	Path   string
	Offset uint64
	Length uint32
	Data   []byte
}

func (m WriteRequest) Marshal() []byte {
	w := NewByteWriter(MaxPathLen + 12 + len(m.Data))
	w.WriteFixedString(m.Path, MaxPathLen)
	w.WriteUint64(m.Offset)
	w.WriteUint32(uint32(len(m.Data)))
	w.WriteBytes(m.Data)
	return w.Bytes()
}

func UnmarshalWriteRequest(payload []byte) (WriteRequest, error) {
	r := NewByteReader(payload)
	m := WriteRequest{
		Path:   r.ReadFixedString(MaxPathLen),
		Offset: r.ReadUint64(),
	}
	m.Length = r.ReadUint32()
	m.Data = r.ReadBytes(int(m.Length))
	return m, r.Err()
}

// DeleteRequest is the payload of a DELETE frame.
type DeleteRequest struct {
	Path string
}

func (m DeleteRequest) Marshal() []byte {
	w := NewByteWriter(MaxPathLen)
	w.WriteFixedString(m.Path, MaxPathLen)
	return w.Bytes()
}

func UnmarshalDeleteRequest(payload []byte) (DeleteRequest, error) {
	r := NewByteReader(payload)
	m := DeleteRequest{Path: r.ReadFixedString(MaxPathLen)}
	return m, r.Err()
}

// CreateRequest is the payload of a CREATE frame.
type CreateRequest struct {
	Path string
	Mode uint32
}

func (m CreateRequest) Marshal() []byte {
	w := NewByteWriter(MaxPathLen + 4)
	w.WriteFixedString(m.Path, MaxPathLen)
	w.WriteUint32(m.Mode)
	return w.Bytes()
}

func UnmarshalCreateRequest(payload []byte) (CreateRequest, error) {
	r := NewByteReader(payload)
	m := CreateRequest{
		Path: r.ReadFixedString(MaxPathLen),
		Mode: r.ReadUint32(),
	}
	return m, r.Err()
}

// GetLocationRequest is the payload of a GET_LOCATION frame: a single
// path, not length-prefixed, since the caller knows the path length at
// send time.
type GetLocationRequest struct {
	Path string
}

func (m GetLocationRequest) Marshal() []byte {
	return []byte(m.Path)
}

func UnmarshalGetLocationRequest(payload []byte) GetLocationRequest {
	return GetLocationRequest{Path: string(payload)}
}

// LocationResponse is the payload of a LOCATION frame.
type LocationResponse struct {
	Host string
	Port uint16
}

func (m LocationResponse) Marshal() []byte {
	w := NewByteWriter(LocationHostLen + 2)
	w.WriteFixedString(m.Host, LocationHostLen)
	w.WriteUint16(m.Port)
	return w.Bytes()
}

func UnmarshalLocationResponse(payload []byte) (LocationResponse, error) {
	r := NewByteReader(payload)
	m := LocationResponse{
		Host: r.ReadFixedString(LocationHostLen),
		Port: r.ReadUint16(),
	}
	return m, r.Err()
}

// SSRegisterMessage is the payload of an SS_REGISTER frame: a client
// port followed by num_paths length-prefixed path strings.
type SSRegisterMessage struct {
	Port  uint16
	Paths []string
}

func (m SSRegisterMessage) Marshal() []byte {
	size := 6
	for _, p := range m.Paths {
		size += 4 + len(p) + 1
	}
	w := NewByteWriter(size)
	w.WriteUint16(m.Port)
	w.WriteUint32(uint32(len(m.Paths)))
	for _, p := range m.Paths {
		b := append([]byte(p), 0) // NUL-terminated
		w.WriteUint32(uint32(len(b)))
		w.WriteBytes(b)
	}
	return w.Bytes()
}

func UnmarshalSSRegisterMessage(payload []byte) (SSRegisterMessage, error) {
	r := NewByteReader(payload)
	m := SSRegisterMessage{Port: r.ReadUint16()}
	n := r.ReadUint32()
	m.Paths = make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		l := r.ReadUint32()
		raw := r.ReadBytes(int(l))
		if r.Err() != nil {
			break
		}
		// trim the trailing NUL
		if len(raw) > 0 && raw[len(raw)-1] == 0 {
			raw = raw[:len(raw)-1]
		}
		m.Paths = append(m.Paths, string(raw))
	}
	return m, r.Err()
}

// HeartbeatMessage is the payload of a HEARTBEAT frame.
type HeartbeatMessage struct {
	Host string
	Port string
	Load int32
}

func (m HeartbeatMessage) Marshal() []byte {
	w := NewByteWriter(HostFieldLen + PortFieldLen + 4)
	w.WriteFixedString(m.Host, HostFieldLen)
	w.WriteFixedString(m.Port, PortFieldLen)
	w.WriteInt32(m.Load)
	return w.Bytes()
}

func UnmarshalHeartbeatMessage(payload []byte) (HeartbeatMessage, error) {
	r := NewByteReader(payload)
	m := HeartbeatMessage{
		Host: r.ReadFixedString(HostFieldLen),
		Port: r.ReadFixedString(PortFieldLen),
		Load: r.ReadInt32(),
	}
	return m, r.Err()
}

// GetFileInfoRequest is the payload of a GET_FILE_INFO frame.
type GetFileInfoRequest struct {
	Path string
}

func (m GetFileInfoRequest) Marshal() []byte {
	w := NewByteWriter(MaxPathLen)
	w.WriteFixedString(m.Path, MaxPathLen)
	return w.Bytes()
}

func UnmarshalGetFileInfoRequest(payload []byte) (GetFileInfoRequest, error) {
	r := NewByteReader(payload)
	m := GetFileInfoRequest{Path: r.ReadFixedString(MaxPathLen)}
	return m, r.Err()
}

// GetFileInfoResponseMsg is the payload of a GET_FILE_INFO_RESPONSE frame.
type GetFileInfoResponseMsg struct {
	FileSize    uint64
	Permissions uint32
}

func (m GetFileInfoResponseMsg) Marshal() []byte {
	w := NewByteWriter(12)
	w.WriteUint64(m.FileSize)
	w.WriteUint32(m.Permissions)
	return w.Bytes()
}

func UnmarshalGetFileInfoResponse(payload []byte) (GetFileInfoResponseMsg, error) {
	r := NewByteReader(payload)
	m := GetFileInfoResponseMsg{
		FileSize:    r.ReadUint64(),
		Permissions: r.ReadUint32(),
	}
	return m, r.Err()
}

// StreamRequest is the payload of a STREAM frame.
type StreamRequest struct {
	Path          string
	StartPosition uint64
	ChunkSize     uint32
	MetadataOnly  bool
}

func (m StreamRequest) Marshal() []byte {
	w := NewByteWriter(MaxPathLen + 13)
	w.WriteFixedString(m.Path, MaxPathLen)
	w.WriteUint64(m.StartPosition)
	w.WriteUint32(m.ChunkSize)
	if m.MetadataOnly {
		w.WriteOneByte(1)
	} else {
		w.WriteOneByte(0)
	}
	return w.Bytes()
}

func UnmarshalStreamRequest(payload []byte) (StreamRequest, error) {
	r := NewByteReader(payload)
	m := StreamRequest{
		Path:          r.ReadFixedString(MaxPathLen),
		StartPosition: r.ReadUint64(),
		ChunkSize:     r.ReadUint32(),
		MetadataOnly:  r.ReadOneByte() != 0,
	}
	return m, r.Err()
}

// StreamDataChunk is the payload of a STREAM_DATA frame.
type StreamDataChunk struct {
	Offset     uint64
	Data       []byte
	IsLastChunk bool
}

func (m StreamDataChunk) Marshal() []byte {
	w := NewByteWriter(13 + len(m.Data))
	w.WriteUint64(m.Offset)
	w.WriteUint32(uint32(len(m.Data)))
	if m.IsLastChunk {
		w.WriteOneByte(1)
	} else {
		w.WriteOneByte(0)
	}
	w.WriteBytes(m.Data)
	return w.Bytes()
}

func UnmarshalStreamDataChunk(payload []byte) (StreamDataChunk, error) {
	r := NewByteReader(payload)
	m := StreamDataChunk{Offset: r.ReadUint64()}
	n := r.ReadUint32()
	m.IsLastChunk = r.ReadOneByte() != 0
	m.Data = r.ReadBytes(int(n))
	return m, r.Err()
}
