package mqtt

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/linbus"
	"github.com/robotalks/lin.go/pkg/msgs"
)

// Topics relative to the bridge name.
const (
	TopicFrames   = "frames"
	TopicTransmit = "tx"
	TopicStatus   = "status"
)

// DefaultURL is the broker used when LIN_MQTT_URL is not set.
var DefaultURL = "mqtt://localhost:1883/lin/"

func init() {
	if val := os.Getenv("LIN_MQTT_URL"); val != "" {
		DefaultURL = val
	}
}

// Sender accepts one-shot frames, implemented by linbus.Scheduler.
type Sender interface {
	Send(linbus.Entry) error
}

// ClientID derives a client ID unique to this machine.
func ClientID(name string) string {
	id, err := machineid.ProtectedID("lin")
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return "lin:" + name
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return "lin:" + name + ":" + id
}

// Bridge publishes frames seen on a bus to
// <prefix><name>/frames/<id>, and, with a Sender, transmits frames
// requested on <prefix><name>/tx/<id>.
type Bridge struct {
	Queue  *Queue
	Name   string
	Sender Sender
	// Now is the timestamp source of published frames.
	Now func() time.Time
}

// NewBridge creates a Bridge connected to brokerURL.
func NewBridge(brokerURL, name string) (*Bridge, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID(ClientID(name))
	}
	status, err := msgs.Encode(&msgs.BusStatus{State: "offline"})
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+name+"/"+TopicStatus, status, 1, true)
	return newBridge(NewQueue(opts, topicPrefix), name), nil
}

func newBridge(q *Queue, name string) *Bridge {
	return &Bridge{Queue: q, Name: name, Now: time.Now}
}

func (b *Bridge) topic(kind string) string {
	return b.Name + "/" + kind
}

// HandleFrame implements linbus.FrameHandler.
func (b *Bridge) HandleFrame(ctx context.Context, frame linbus.Frame) {
	payload, err := msgs.Encode(msgs.NewFrame(frame, b.Now()))
	if err != nil {
		glog.Errorf("encode frame %s: %v", frame, err)
		return
	}
	b.Queue.Pub(fmt.Sprintf("%s/%02x", b.topic(TopicFrames), frame.ID), payload)
}

// PublishStatus publishes the engine status, retained.
func (b *Bridge) PublishStatus(e *lin.Engine) error {
	payload, err := msgs.Encode(msgs.NewBusStatus(e))
	if err != nil {
		return err
	}
	b.Queue.PubWith(b.topic(TopicStatus), payload, 1, true)
	return nil
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	// subscribed on connect
	if b.Sender != nil {
		b.Queue.Sub(b.topic(TopicTransmit)+"/+", b.handleTransmit)
	}
	token := b.Queue.Connect()
	if token.Wait(); token.Error() != nil {
		return token.Error()
	}
	defer b.Queue.Close()
	<-ctx.Done()
	return ctx.Err()
}

// String implements fmt.Stringer.
func (b *Bridge) String() string {
	return "mqtt:" + b.Name
}

func (b *Bridge) handleTransmit(topic string, payload []byte) {
	if err := b.transmit(topic, payload); err != nil {
		glog.Warningf("%s: %v", topic, err)
	}
}

func (b *Bridge) transmit(topic string, payload []byte) error {
	id, err := linbus.ParseID("0x" + topic[strings.LastIndex(topic, "/")+1:])
	if err != nil {
		return err
	}
	msg, err := msgs.DecodeTransmit(payload)
	if err != nil {
		return err
	}
	msg.Id = uint32(id)
	entry, err := msg.Entry()
	if err != nil {
		return err
	}
	return b.Sender.Send(entry)
}
