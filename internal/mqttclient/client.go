package mqttclient

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/transcribe-api/internal/transcribe"
)

const publishTimeout = 5 * time.Second

// publisher is the subset of mqtt.Client used for events.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Client publishes transcription events to a single MQTT topic.
// Implements transcribe.EventPublisher.
type Client struct {
	conn      publisher
	topic     string
	connected atomic.Bool
	log       zerolog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

type Options struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Connect dials the broker and blocks until the first connection succeeds
// or fails. Later disconnects reconnect in the background.
func Connect(opts Options) (*Client, error) {
	c := &Client{
		topic: opts.Topic,
		log:   opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	conn := mqtt.NewClient(clientOpts)
	token := conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	c.conn = conn

	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("topic", c.topic).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Publish sends ev as JSON at QoS 0. It never blocks the request path:
// delivery is confirmed in the background and failures are only logged.
func (c *Client) Publish(ev transcribe.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal transcription event")
		return
	}

	token := c.conn.Publish(c.topic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.failed.Add(1)
			c.log.Warn().Str("topic", c.topic).Msg("mqtt publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			c.failed.Add(1)
			c.log.Warn().Err(err).Str("topic", c.topic).Msg("mqtt publish failed")
			return
		}
		c.published.Add(1)
	}()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// stats returns counts of confirmed and failed publishes.
func (c *Client) stats() (published, failed int64) {
	return c.published.Load(), c.failed.Load()
}

func (c *Client) Close() {
	published, failed := c.stats()
	c.log.Info().
		Int64("published", published).
		Int64("failed", failed).
		Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
