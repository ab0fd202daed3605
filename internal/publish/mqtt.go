package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt publisher stopped")
)

const publishTimeout = 5 * time.Second

// Config configures an MQTTPublisher.
type Config struct {
	Broker   string
	Port     int
	ClientID string
	Topic    string
}

// Payload is the JSON document published for every refresh outcome.
type Payload struct {
	CycleID     string             `json:"cycleId"`
	Coordinate  weather.Coordinate `json:"coordinate"`
	Timestamp   time.Time          `json:"timestamp"`
	OK          bool               `json:"ok"`
	Location    string             `json:"location,omitempty"`
	Temperature string             `json:"temperature,omitempty"`
	Description string             `json:"description,omitempty"`
	IconURL     string             `json:"iconUrl,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// EncodeOutcome renders an outcome as a Payload document.
func EncodeOutcome(o weather.Outcome) ([]byte, error) {
	p := Payload{
		CycleID:    o.CycleID,
		Coordinate: o.Coordinate,
		Timestamp:  o.Timestamp.UTC(),
		OK:         o.OK(),
		Reason:     o.Reason,
	}
	if o.Snapshot != nil {
		p.Location = o.Snapshot.LocationName
		p.Temperature = o.Snapshot.TemperatureText
		p.Description = o.Snapshot.Description
		p.IconURL = o.Snapshot.IconURL
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal outcome: %w", err)
	}
	return data, nil
}

// MQTTPublisher pushes refresh outcomes to an MQTT broker.
type MQTTPublisher struct {
	client    mqtt.Client
	cfg       Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMQTTPublisher builds a publisher with auto-reconnect. It does not dial
// until Connect is called.
func NewMQTTPublisher(cfg Config, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &MQTTPublisher{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial broker connection, honouring ctx and Disconnect.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrStopped
		default:
		}
	}
}

// Publish sends one outcome. Successful outcomes are retained so late
// subscribers see the current conditions.
func (p *MQTTPublisher) Publish(o weather.Outcome) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := EncodeOutcome(o)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.cfg.Topic, 1, o.OK(), data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", p.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}

	p.logger.Debug("published outcome", "topic", p.cfg.Topic, "cycleId", o.CycleID, "ok", o.OK())
	return nil
}

// IsConnected returns whether the client is connected.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher. Idempotent; Connect fails afterwards.
func (p *MQTTPublisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
