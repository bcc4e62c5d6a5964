// Package msgs defines the messages a LIN gateway exchanges with remote
// peers over MQTT and websocket, encoded as protobuf.
package msgs

import (
	"errors"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/linbus"
)

// ErrInvalidFrame indicates a decoded frame doesn't fit on the bus.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is a frame observed on the bus.
type Frame struct {
	Id        uint32 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Data      []byte `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
	Checksum  uint32 `protobuf:"varint,3,opt,name=checksum,proto3" json:"checksum,omitempty"`
	Timestamp int64  `protobuf:"varint,4,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// NewFrame creates a Frame observed at ts.
func NewFrame(f linbus.Frame, ts time.Time) *Frame {
	return &Frame{
		Id:        uint32(f.ID),
		Data:      f.Data,
		Checksum:  uint32(f.Checksum()),
		Timestamp: ts.UnixNano(),
	}
}

// LinFrame converts to linbus.Frame, verifying identifier, length and
// checksum.
func (m *Frame) LinFrame() (linbus.Frame, error) {
	if m.Id > uint32(lin.MaxID) {
		return linbus.Frame{}, ErrInvalidFrame
	}
	f := linbus.Frame{ID: byte(m.Id), Data: m.Data}
	if err := f.Validate(); err != nil {
		return f, ErrInvalidFrame
	}
	if m.Checksum != uint32(f.Checksum()) {
		return f, lin.ErrChecksumMismatch
	}
	return f, nil
}

// Time returns the observation time.
func (m *Frame) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

// ProtoMessage implements proto.Message.
func (m *Frame) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Frame) Reset() { *m = Frame{} }

// String implements proto.Message.
func (m *Frame) String() string { return proto.CompactTextString(m) }

// Transmit requests the host to transmit a frame.
type Transmit struct {
	Id       uint32 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Data     []byte `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
	Response uint32 `protobuf:"varint,3,opt,name=response,proto3" json:"response,omitempty"`
	// HeaderOnly sends the header without a payload when Data is empty.
	HeaderOnly bool `protobuf:"varint,4,opt,name=header_only,proto3" json:"header_only,omitempty"`
}

// Entry converts to a one-shot schedule entry.
func (m *Transmit) Entry() (linbus.Entry, error) {
	if m.Id > uint32(lin.MaxID) || m.Response > lin.MaxDataLen {
		return linbus.Entry{}, ErrInvalidFrame
	}
	entry := linbus.Entry{ID: byte(m.Id), Response: int(m.Response)}
	if len(m.Data) > 0 || (m.Response == 0 && !m.HeaderOnly) {
		entry.Data = append([]byte{}, m.Data...)
	}
	if err := entry.Validate(); err != nil {
		return entry, ErrInvalidFrame
	}
	return entry, nil
}

// ProtoMessage implements proto.Message.
func (m *Transmit) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Transmit) Reset() { *m = Transmit{} }

// String implements proto.Message.
func (m *Transmit) String() string { return proto.CompactTextString(m) }

// BusStatus reports the state of an engine.
type BusStatus struct {
	Role          string `protobuf:"bytes,1,opt,name=role,proto3" json:"role,omitempty"`
	State         string `protobuf:"bytes,2,opt,name=state,proto3" json:"state,omitempty"`
	Baud          uint32 `protobuf:"varint,3,opt,name=baud,proto3" json:"baud,omitempty"`
	Breaks        uint64 `protobuf:"varint,4,opt,name=breaks,proto3" json:"breaks,omitempty"`
	Overflows     uint64 `protobuf:"varint,5,opt,name=overflows,proto3" json:"overflows,omitempty"`
	SyncOverflows uint64 `protobuf:"varint,6,opt,name=sync_overflows,proto3" json:"sync_overflows,omitempty"`
}

// NewBusStatus captures the status of an engine.
func NewBusStatus(e *lin.Engine) *BusStatus {
	stats := e.Stats()
	return &BusStatus{
		Role:          e.Role().String(),
		State:         e.State().String(),
		Baud:          uint32(e.Baud()),
		Breaks:        stats.Breaks,
		Overflows:     stats.Overflows,
		SyncOverflows: stats.SyncOverflows,
	}
}

// ProtoMessage implements proto.Message.
func (m *BusStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *BusStatus) Reset() { *m = BusStatus{} }

// String implements proto.Message.
func (m *BusStatus) String() string { return proto.CompactTextString(m) }

// Encode encodes a message to bytes.
func Encode(m proto.Message) ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeFrame decodes bytes into Frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var m Frame
	if err := proto.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeTransmit decodes bytes into Transmit.
func DecodeTransmit(data []byte) (*Transmit, error) {
	var m Transmit
	if err := proto.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeBusStatus decodes bytes into BusStatus.
func DecodeBusStatus(data []byte) (*BusStatus, error) {
	var m BusStatus
	if err := proto.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
