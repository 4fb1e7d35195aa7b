package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/NamanBalaji/otad/internal/errors"
	"github.com/NamanBalaji/otad/internal/logger"
	"github.com/NamanBalaji/otad/internal/ota"
	"github.com/NamanBalaji/otad/internal/progress"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrTimeout      = errors.New("mqtt operation timed out")
)

// OfferHandler decides on an offer without blocking.
type OfferHandler func(ota.Offer) bool

// Options configure the MQTT session.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topics         Topics
	QoS            byte
	ConnectTimeout time.Duration
	// OnConnect runs in its own goroutine after every (re)connect and subscribe.
	OnConnect func()
}

// Client is the device side of the cloud session. It delivers offers to the
// handler and implements progress.Acker.
type Client struct {
	client  mqtt.Client
	opts    Options
	handler OfferHandler
}

var _ progress.Acker = (*Client)(nil)

// New creates a client backed by a paho MQTT connection with auto reconnect.
func New(opts Options, handler OfferHandler) *Client {
	c := &Client{opts: opts, handler: handler}

	mo := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOrderMatters(false)

	mo.OnConnect = func(mqtt.Client) {
		logger.Infof("Connected to MQTT broker %s", opts.Broker)
		c.onConnect()
	}

	mo.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnf("MQTT connection lost, waiting for reconnect: %v", err)
	}

	c.client = mqtt.NewClient(mo)

	return c
}

// NewWithClient wraps an existing paho client. Subscriptions are not made
// until Subscribe is called.
func NewWithClient(mc mqtt.Client, opts Options, handler OfferHandler) *Client {
	return &Client{client: mc, opts: opts, handler: handler}
}

func (c *Client) onConnect() {
	if err := c.Subscribe(); err != nil {
		logger.Errorf("Failed to subscribe to %s: %v", c.opts.Topics.Offer, err)
		return
	}

	if c.opts.OnConnect != nil {
		go c.opts.OnConnect()
	}
}

// Connect opens the session. With connect retry enabled paho keeps trying
// in the background, so Connect returns once connected or when ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers the offer handler on the offer topic.
func (c *Client) Subscribe() error {
	token := c.client.Subscribe(c.opts.Topics.Offer, c.opts.QoS, c.handleOffer)

	return c.wait(token)
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// handleOffer runs inside paho's message callback. It must not wait on
// publishes, so the reply is sent from a separate goroutine.
func (c *Client) handleOffer(_ mqtt.Client, msg mqtt.Message) {
	var m OfferMessage

	reply := OfferReply{}

	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		logger.Warnf("Discarding malformed offer on %s: %v", msg.Topic(), err)
		reply.Reason = "malformed offer"
	} else {
		reply.TargetVersion = m.TargetVersion
		reply.Accepted = c.handler(m.Offer())

		if !reply.Accepted {
			reply.Reason = "refused"
		}
	}

	go func() {
		if err := c.publish(c.opts.Topics.OfferReply, reply); err != nil {
			logger.Warnf("Failed to reply to offer: %v", err)
		}
	}()
}

func (c *Client) AckProgress(code int32, msg string, downloaded, total int64) error {
	return c.publish(c.opts.Topics.Progress, ProgressMessage{
		Code:         code,
		Msg:          msg,
		DownloadSize: downloaded,
		TotalSize:    total,
	})
}

func (c *Client) AckResult(code int32, msg, version string) error {
	return c.publish(c.opts.Topics.Result, ResultMessage{
		Code:       code,
		Msg:        msg,
		NewVersion: version,
	})
}

func (c *Client) publish(topic string, v interface{}) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("%w: publish to %s", ErrNotConnected, topic)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}

	if err := c.wait(c.client.Publish(topic, c.opts.QoS, false, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	logger.Debugf("Published %s: %s", topic, payload)

	return nil
}

func (c *Client) wait(token mqtt.Token) error {
	return waitToken(token, c.opts.ConnectTimeout)
}

func waitToken(token mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}

	return token.Error()
}
