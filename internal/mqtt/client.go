package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBrokerURL is used when no broker is configured.
const DefaultBrokerURL = "tcp://localhost:1883"

// Broker is the part of the client used by publishers and subscribers.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler paho.MessageHandler) error
	IsConnected() bool
}

// Options configure the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// OnConnectionLost is called when the broker connection drops.
	OnConnectionLost func(err error)
	// OnConnect is called after every successful (re)connect.
	OnConnect func()
}

// Client wraps the Paho MQTT client.
type Client struct {
	client    paho.Client
	brokerURL string
	mu        sync.Mutex
}

var _ Broker = (*Client)(nil)

// NewClient creates a new MQTT client but does not connect.
func NewClient(o Options) *Client {
	url := o.BrokerURL
	if url == "" {
		url = DefaultBrokerURL
	}
	opts := paho.NewClientOptions().
		AddBroker(url).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.OnConnectionLost != nil {
		opts.SetConnectionLostHandler(func(_ paho.Client, err error) { o.OnConnectionLost(err) })
	}
	if o.OnConnect != nil {
		opts.SetOnConnectHandler(func(paho.Client) { o.OnConnect() })
	}

	return &Client{
		client:    paho.NewClient(opts),
		brokerURL: url,
	}
}

// BrokerURL returns the broker the client connects to.
func (c *Client) BrokerURL() string {
	return c.brokerURL
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Publish sends payload at QoS 0. Checkpoints are sent every frame, so a
// slow broker must not hold the frame loop for long.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(time.Second) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates a publish was not acknowledged in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}
