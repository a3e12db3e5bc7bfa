// Package telemetry publishes rover status over MQTT as JSON. Publishing is
// best effort: a broker outage never blocks or degrades the logging core.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rtkrover/internal/logstore"
	"rtkrover/internal/ntrip"
	"rtkrover/internal/receiver"
	"rtkrover/internal/session"
)

type Config struct {
	Enable bool

	// Broker is the MQTT broker URL, e.g. "tcp://localhost:1883".
	Broker   string
	ClientID string

	// TopicPrefix defaults to "rtkrover"; status goes to <prefix>/status.
	TopicPrefix string

	// Interval is the publish cadence. Default 10s.
	Interval time.Duration
}

// Status is the aggregated rover state published on each interval.
type Status struct {
	Time      string             `json:"time"`
	UptimeSec int64              `json:"uptime_sec"`
	Receiver  receiver.Snapshot  `json:"receiver"`
	Session   session.Snapshot   `json:"session"`
	Ntrip     ntrip.Snapshot     `json:"ntrip"`
	Storage   logstore.Snapshot  `json:"storage"`
}

// mqttClient is the slice of the paho client we use; mqtt.Client satisfies it.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

var newClientFn = func(opts *mqtt.ClientOptions) mqttClient { return mqtt.NewClient(opts) }

type Publisher struct {
	cfg    Config
	client mqttClient

	published uint64
	failed    uint64
}

func New(cfg Config) *Publisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "rtkrover"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "rtkrover"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Publisher{cfg: cfg}
}

func (p *Publisher) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.cfg.Interval
}

// Start connects to the broker. AutoReconnect handles broker restarts so the
// control loop never has to care.
func (p *Publisher) Start() error {
	if p == nil || !p.cfg.Enable {
		return nil
	}
	if p.cfg.Broker == "" {
		return fmt.Errorf("telemetry: broker not configured")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second)
	client := newClientFn(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: connect %s: %w", p.cfg.Broker, token.Error())
	}
	p.client = client
	log.Printf("telemetry connected broker=%s client_id=%s", p.cfg.Broker, p.cfg.ClientID)
	return nil
}

// Publish sends the status to <prefix>/status at QoS 0. Failures are counted
// and otherwise ignored.
func (p *Publisher) Publish(st Status) {
	if p == nil || p.client == nil {
		return
	}
	if !p.client.IsConnected() {
		p.failed++
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		p.failed++
		return
	}
	token := p.client.Publish(p.cfg.TopicPrefix+"/status", 0, false, payload)
	if token.Wait() && token.Error() != nil {
		p.failed++
		return
	}
	p.published++
}

func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
	p.client = nil
}
