package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/lin.go/pkg/bridge/mqtt"
	"github.com/robotalks/lin.go/pkg/msgs"
)

var (
	mqttURL = mqtt.DefaultURL
)

func init() {
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.Set("logtostderr", "true")
}

func handle(topic string, payload []byte) {
	var (
		msg fmt.Stringer
		err error
	)
	parts := strings.Split(topic, "/")
	switch {
	case len(parts) > 1 && parts[len(parts)-2] == mqtt.TopicFrames:
		msg, err = msgs.DecodeFrame(payload)
	case len(parts) > 1 && parts[len(parts)-2] == mqtt.TopicTransmit:
		msg, err = msgs.DecodeTransmit(payload)
	case parts[len(parts)-1] == mqtt.TopicStatus:
		msg, err = msgs.DecodeBusStatus(payload)
	default:
		glog.Infof("%s: %d bytes", topic, len(payload))
		return
	}
	if err != nil {
		glog.Warningf("%s: bad message: %v", topic, err)
		return
	}
	glog.Infof("%s: %s", topic, msg)
}

func main() {
	flag.Parse()

	opts, prefix, err := mqtt.ClientOptionsFromURL(mqttURL)
	if err != nil {
		glog.Exit(err)
	}
	opts.SetClientID(mqtt.ClientID("monitor"))
	q := mqtt.NewQueue(opts, prefix)
	q.Sub("#", handle)
	token := q.Connect()
	if token.Wait(); token.Error() != nil {
		glog.Exit(token.Error())
	}
	<-(chan struct{})(nil)
}
