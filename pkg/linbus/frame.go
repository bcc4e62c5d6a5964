// Package linbus provides bus services on top of a LIN engine: a Node
// answering and consuming frames by identifier, and a Scheduler issuing
// headers from a host schedule table.
package linbus

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/robotalks/lin.go/pkg/lin"
)

// Frame is a complete LIN frame as seen on the bus.
type Frame struct {
	ID   byte
	Data []byte
}

// PID returns the protected identifier.
func (f Frame) PID() byte {
	return lin.ProtectedID(f.ID)
}

// Checksum returns the classic checksum of the payload.
func (f Frame) Checksum() byte {
	return lin.ClassicChecksum(f.Data)
}

// Validate checks the identifier and the payload length.
func (f Frame) Validate() error {
	if f.ID > lin.MaxID {
		return fmt.Errorf("%w: identifier 0x%02x", lin.ErrInvalidArgument, f.ID)
	}
	if len(f.Data) > lin.MaxDataLen {
		return fmt.Errorf("%w: %d data bytes", lin.ErrInvalidArgument, len(f.Data))
	}
	return nil
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return fmt.Sprintf("0x%02x [%s]", f.ID, hex.EncodeToString(f.Data))
}

// FrameHandler is called with frames passing on the bus.
type FrameHandler interface {
	HandleFrame(context.Context, Frame)
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(context.Context, Frame)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, frame Frame) {
	f(ctx, frame)
}

// Handlers fans a frame out to every handler in order.
type Handlers []FrameHandler

// HandleFrame implements FrameHandler.
func (h Handlers) HandleFrame(ctx context.Context, frame Frame) {
	for _, handler := range h {
		handler.HandleFrame(ctx, frame)
	}
}

// Responder provides the response a Node publishes for a header.
type Responder interface {
	Respond(ctx context.Context, id byte) ([]byte, error)
}

// RespondFunc is func type of Responder.
type RespondFunc func(ctx context.Context, id byte) ([]byte, error)

// Respond implements Responder.
func (f RespondFunc) Respond(ctx context.Context, id byte) ([]byte, error) {
	return f(ctx, id)
}

// StaticResponse always responds with the same data.
func StaticResponse(data []byte) Responder {
	return RespondFunc(func(context.Context, byte) ([]byte, error) {
		return data, nil
	})
}
