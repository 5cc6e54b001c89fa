package ingest

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// MQTTSource subscribes to a topic where each message payload is one raw
// frame. Messages arriving while the station queue is full are dropped.
type MQTTSource struct {
	cfg MQTTConfig

	out     atomic.Pointer[chan<- Delivery]
	dropped atomic.Uint64
	now     func() time.Time
}

func NewMQTTSource(cfg MQTTConfig) *MQTTSource {
	return &MQTTSource{cfg: cfg, now: time.Now}
}

func (s *MQTTSource) Name() string { return "mqtt:" + s.cfg.Topic }

// Dropped reports how many messages were discarded because the queue was full.
func (s *MQTTSource) Dropped() uint64 { return s.dropped.Load() }

func (s *MQTTSource) Run(ctx context.Context, out chan<- Delivery) error {
	s.out.Store(&out)
	defer s.out.Store(nil)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", s.cfg.ClientID, time.Now().Unix()))
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = s.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("ingest mqtt: connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	log.Printf("ingest mqtt: connecting broker=%s topic=%s", s.cfg.Broker, s.cfg.Topic)
	// With ConnectRetry the token only completes once connected or on Disconnect.
	client.Connect()

	<-ctx.Done()
	client.Disconnect(1000)
	return ctx.Err()
}

// onConnect (re)subscribes; paho does not restore subscriptions on a clean
// session reconnect.
func (s *MQTTSource) onConnect(client mqtt.Client) {
	token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("ingest mqtt: subscribe timeout topic=%s", s.cfg.Topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("ingest mqtt: subscribe error: %v", err)
		return
	}
	log.Printf("ingest mqtt: subscribed topic=%s qos=%d", s.cfg.Topic, s.cfg.QoS)
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	p := s.out.Load()
	if p == nil {
		return
	}
	payload := msg.Payload()
	if len(payload) == 0 {
		return
	}
	raw := make([]byte, len(payload))
	copy(raw, payload)

	d := Delivery{Source: s.Name(), ReceivedAt: s.now(), Raw: raw}
	if !offer(*p, d) {
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("ingest mqtt: station queue full, dropped=%d", n)
		}
	}
}
