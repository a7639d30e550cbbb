package notify

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"stovewatch/internal/logger"
	"stovewatch/internal/models"
)

// MQTT topic suffixes, published under the configured root
// (e.g. "stovewatch/event/left_home").
const (
	topicMonitoring = "event/monitoring"
	topicLeftHome   = "event/left_home"
	topicReturned   = "event/returned_home"
	topicHomeSet    = "event/home_set"
	topicDetection  = "event/detection"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTNotifier publishes events to an MQTT broker so home-automation setups
// (dashboards, phone push bridges) can subscribe. Publish failures are logged
// and dropped, keeping the notifier fire-and-forget.
type MQTTNotifier struct {
	client    paho.Client
	topicRoot string
	log       *logger.Logger
}

// NewMQTTNotifier connects to the broker. Connection problems fail
// construction; once connected, auto-reconnect keeps the session alive.
func NewMQTTNotifier(brokerURL, clientID, topicRoot string, log *logger.Logger) (*MQTTNotifier, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTNotifier{client: client, topicRoot: topicRoot, log: log}, nil
}

// Close disconnects from the broker, allowing in-flight publishes to drain.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}

func (n *MQTTNotifier) MonitoringStarted() {
	n.publish(topicMonitoring, map[string]any{"state": "started"})
}

func (n *MQTTNotifier) MonitoringStopped() {
	n.publish(topicMonitoring, map[string]any{"state": "stopped"})
}

func (n *MQTTNotifier) LeftHome(distanceMiles float64) {
	n.publish(topicLeftHome, map[string]any{"distance_miles": distanceMiles})
}

func (n *MQTTNotifier) ReturnedHome() {
	n.publish(topicReturned, map[string]any{})
}

func (n *MQTTNotifier) HomeSet(loc models.Coordinate) {
	n.publish(topicHomeSet, map[string]any{
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
	})
}

func (n *MQTTNotifier) DetectionSucceeded(res models.DetectionResult) {
	n.publish(topicDetection, map[string]any{
		"ok":          true,
		"stove_on":    res.StoveIsOn,
		"on_knobs":    res.OnKnobCount,
		"total_knobs": res.TotalKnobCount,
	})
}

func (n *MQTTNotifier) DetectionFailed(message string) {
	n.publish(topicDetection, map[string]any{
		"ok":    false,
		"error": message,
	})
}

func (n *MQTTNotifier) publish(suffix string, payload map[string]any) {
	payload["at"] = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(payload)
	if err != nil {
		n.log.Errorw("mqtt payload marshal failed", "topic", suffix, "err", err)
		return
	}

	topic := n.topicRoot + "/" + suffix
	// QoS 1: at-least-once delivery.
	token := n.client.Publish(topic, 1, false, b)
	if !token.WaitTimeout(publishTimeout) {
		n.log.Errorw("mqtt publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		n.log.Errorw("mqtt publish failed", "topic", topic, "err", err)
	}
}
