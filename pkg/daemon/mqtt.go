package daemon

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/events"
)

// runEventMirror republishes every hub event to an MQTT broker, so remote
// dashboards can watch session state without a connection to the unix
// socket. Returns a stop function.
func runEventMirror(broker, topic string, hub *events.EventHub) (func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("grip-daemon").
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	logrus.Infof("mqtt event mirror connected to %s", broker)

	ch := hub.Subscribe()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				// Fire and forget at QoS 0; the mirror is advisory.
				client.Publish(topic+"/"+ev.Name, 0, false, []byte(ev.Data))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		hub.Unsubscribe(ch)
		client.Disconnect(250)
	}, nil
}
