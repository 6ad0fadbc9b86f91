// Package mqtt ingests vehicle telemetry published by on-board units and
// feeds it through the transition engine.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/cargoroute/tracker/core/engine"
	"github.com/cargoroute/tracker/core/model"
	"github.com/cargoroute/tracker/infra/logger"
)

// Config defines the connection parameters for the telemetry subscriber.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// LocationTopic and StatusTopic use a single-level wildcard in the
	// vehicle id position.
	LocationTopic string `json:"location_topic"`
	StatusTopic   string `json:"status_topic"`
	QoS           byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "cargoroute-tracker"
	}
	if c.LocationTopic == "" {
		c.LocationTopic = "fleet/vehicle/+/location"
	}
	if c.StatusTopic == "" {
		c.StatusTopic = "fleet/vehicle/+/status"
	}
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Ingestor subscribes to the telemetry topics and applies each sample via the
// engine. Malformed or unresolvable samples are logged and dropped; telemetry
// is re-sent on the next ping anyway.
type Ingestor struct {
	cli    pahoClient
	engine *engine.Engine
	log    logger.Logger
}

// NewIngestor connects to the broker and subscribes to the telemetry topics.
func NewIngestor(cfg Config, eng *engine.Engine) (*Ingestor, error) {
	if eng == nil {
		return nil, fmt.Errorf("mqtt: nil engine provided to NewIngestor")
	}
	cfg.SetDefaults()

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	ing := &Ingestor{cli: newMQTTClient(opts), engine: eng, log: logger.New("mqtt-ingest")}
	if tok := ing.cli.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", tok.Error())
	}
	if tok := ing.cli.Subscribe(cfg.LocationTopic, cfg.QoS, ing.handleLocation); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.LocationTopic, tok.Error())
	}
	if tok := ing.cli.Subscribe(cfg.StatusTopic, cfg.QoS, ing.handleStatus); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.StatusTopic, tok.Error())
	}
	return ing, nil
}

// Close disconnects from the broker.
func (i *Ingestor) Close() {
	i.cli.Disconnect(250)
}

func (i *Ingestor) handleLocation(_ paho.Client, msg paho.Message) {
	id, err := vehicleIDFromTopic(msg.Topic())
	if err != nil {
		i.log.Warnf("location ping: %v", err)
		return
	}
	var p struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		i.log.Warnf("location ping for vehicle %d: %v", id, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := i.engine.ApplyVehicleLocation(ctx, id, p.Latitude, p.Longitude); err != nil {
		i.log.Warnf("apply location for vehicle %d: %v", id, err)
	}
}

func (i *Ingestor) handleStatus(_ paho.Client, msg paho.Message) {
	id, err := vehicleIDFromTopic(msg.Topic())
	if err != nil {
		i.log.Warnf("status message: %v", err)
		return
	}
	var p struct {
		Status model.VehicleStatus `json:"status"`
	}
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		i.log.Warnf("status message for vehicle %d: %v", id, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := i.engine.ApplyVehicleStatus(ctx, id, p.Status); err != nil {
		i.log.Warnf("apply status for vehicle %d: %v", id, err)
	}
}

// vehicleIDFromTopic extracts the id from fleet/vehicle/<id>/<kind>.
func vehicleIDFromTopic(topic string) (int64, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("vehicle id in topic %q: %w", topic, err)
	}
	return id, nil
}
