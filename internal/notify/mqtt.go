package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/logging"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
}

// publisher is the part of mqtt.Client the publisher needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes events as JSON to <prefix>/<kind>.
type MQTTPublisher struct {
	client publisher
	prefix string
	close  func()
}

// NewMQTTPublisher connects to the broker. A random client id is used when
// none is configured.
func NewMQTTPublisher(ctx context.Context, opts MQTTOptions) (*MQTTPublisher, error) {
	logger := logging.FromContext(ctx)

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "mudra-" + uuid.New().String()
	}

	clientOpts := mqtt.NewClientOptions().AddBroker(opts.Broker).SetClientID(clientID)
	clientOpts.SetUsername(opts.Username)
	clientOpts.SetPassword(opts.Password)
	clientOpts.SetKeepAlive(30 * time.Second)
	clientOpts.SetPingTimeout(5 * time.Second)
	clientOpts.SetConnectTimeout(10 * time.Second)
	clientOpts.SetAutoReconnect(true)
	clientOpts.OnConnect = func(mqtt.Client) {
		logger.Infow("connected to MQTT", "broker", opts.Broker, "client_id", clientID)
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnw("lost MQTT connection", "broker", opts.Broker, "error", err)
	}

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, token.Error())
	}

	p := newMQTTPublisher(client, opts.TopicPrefix)
	p.close = func() { client.Disconnect(250) }
	return p, nil
}

func newMQTTPublisher(client publisher, prefix string) *MQTTPublisher {
	if prefix == "" {
		prefix = "mudra"
	}
	return &MQTTPublisher{client: client, prefix: prefix}
}

// Topic returns the topic events of kind are published to.
func (p *MQTTPublisher) Topic(kind Kind) string {
	return p.prefix + "/" + string(kind)
}

// Notify publishes ev and waits for the broker to accept it or ctx to end.
func (p *MQTTPublisher) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.Topic(ev.Kind), 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
