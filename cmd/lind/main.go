package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/lin.go/pkg/bridge/mqtt"
	"github.com/robotalks/lin.go/pkg/bridge/websocket"
	fx "github.com/robotalks/lin.go/pkg/framework"
	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/lin/serialport"
	"github.com/robotalks/lin.go/pkg/linbus"
)

var (
	name           = "lin0"
	host           bool
	mqttURL        = mqtt.DefaultURL
	monitorAddr    string
	subscriptions  string
	publications   string
	schedule       string
	statusInterval = 5 * time.Second
)

func init() {
	lin.SetupFlags()
	serialport.SetupFlags()
	flag.StringVar(&name, "name", name, "Bus name, used in MQTT topics.")
	flag.BoolVar(&host, "host", host, "Run as host and drive the schedule table.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, empty to disable.")
	flag.StringVar(&monitorAddr, "monitor", monitorAddr, "Websocket monitor listen address, e.g. :8080.")
	flag.StringVar(&subscriptions, "sub", subscriptions, "Node: frames to receive, ID[:LEN],...")
	flag.StringVar(&publications, "publish", publications, "Node: static responses, ID=DATA,...")
	flag.StringVar(&schedule, "schedule", schedule, "Host: schedule table, ID[=DATA|?LEN][@SLOT],...")
	flag.DurationVar(&statusInterval, "status-interval", statusInterval, "Interval of bus status publishing.")
}

// statusPublisher publishes the bus status from the bus goroutine.
type statusPublisher struct {
	bridge   *mqtt.Bridge
	engine   *lin.Engine
	interval time.Duration
	last     time.Time
}

func (p *statusPublisher) Step(ctx context.Context) error {
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		p.last = now
		return p.bridge.PublishStatus(p.engine)
	}
	return nil
}

// portWatcher restarts the engine when the serial reader failed.
type portWatcher struct {
	port   *serialport.Port
	engine *lin.Engine
	baud   int
}

func (w *portWatcher) Step(ctx context.Context) error {
	err := w.port.Err()
	if err == nil {
		return nil
	}
	glog.Warningf("%s: %v, restarting", w.port.Name(), err)
	return w.engine.Begin(w.baud)
}

func newNode(engine *lin.Engine, handler linbus.FrameHandler) (*linbus.Node, error) {
	node, err := linbus.NewNode(engine)
	if err != nil {
		return nil, err
	}
	node.Handler = handler
	node.OnIdle = func(context.Context) {
		glog.Infof("bus idle for %s", node.IdleTimeout)
	}
	for _, item := range strings.Split(subscriptions, ",") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		sub, err := linbus.ParseSubscription(item)
		if err != nil {
			return nil, err
		}
		if err = node.Subscribe(sub.ID, sub.Length, nil); err != nil {
			return nil, err
		}
	}
	entries, err := linbus.ParseEntries(publications)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Data == nil {
			return nil, fmt.Errorf("publish 0x%02x: DATA required", entry.ID)
		}
		if err = node.Publish(entry.ID, linbus.StaticResponse(entry.Data)); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func main() {
	flag.Parse()

	conf := lin.Default()
	if err := conf.Validate(); err != nil {
		glog.Exit(err)
	}
	role := lin.RoleNode
	if host {
		role = lin.RoleHost
	}
	port := serialport.New(*serialport.Default(), conf.Pins)
	defer port.Close()
	engine, err := lin.New(role, *conf, port, port, lin.SystemClock())
	if err != nil {
		glog.Exit(err)
	}
	if err = engine.Begin(conf.Baud); err != nil {
		glog.Exitf("begin %s: %v", port.Name(), err)
	}

	var (
		handlers linbus.Handlers
		runners  []fx.Runnable
		steppers []fx.Stepper
		sender   *linbus.Scheduler
		interval time.Duration
	)
	steppers = append(steppers, &portWatcher{port: port, engine: engine, baud: conf.Baud})
	if host {
		table, err := linbus.ParseEntries(schedule)
		if err != nil {
			glog.Exit(err)
		}
		if sender, err = linbus.NewScheduler(engine, table...); err != nil {
			glog.Exit(err)
		}
		sender.Handler = &handlers
		sender.Echo = serialport.Default().Echo
		steppers = append(steppers, sender)
	} else {
		node, err := newNode(engine, &handlers)
		if err != nil {
			glog.Exit(err)
		}
		steppers = append(steppers, node)
		interval = node.PollInterval
	}

	if mqttURL != "" {
		bridge, err := mqtt.NewBridge(mqttURL, name)
		if err != nil {
			glog.Exitf("mqtt: %v", err)
		}
		if sender != nil {
			bridge.Sender = sender
		}
		handlers = append(handlers, bridge)
		runners = append(runners, fx.NamedRun(bridge.String(), bridge))
		steppers = append(steppers, &statusPublisher{bridge: bridge, engine: engine, interval: statusInterval})
	}
	if monitorAddr != "" {
		monitor := websocket.NewMonitor()
		if sender != nil {
			monitor.Sender = sender
		}
		handlers = append(handlers, monitor)
		runners = append(runners, fx.NamedRun("monitor", fx.RunFunc(func(ctx context.Context) error {
			return monitor.Serve(ctx, monitorAddr)
		})))
	}

	loop := fx.NewLoop(interval).Add(steppers...)
	runners = append(runners, fx.NamedRun("bus", loop))
	runner := fx.NewRunner().WithStopAll(true).HandleSignals().Go(runners...)
	glog.Infof("%s %s on %s", name, role, port.Name())
	if err = runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
