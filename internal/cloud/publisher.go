package cloud

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/NamanBalaji/otad/internal/logger"
)

// Publisher is the cloud side of the session: it sends offers to devices.
type Publisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewPublisher wraps a connected paho client.
func NewPublisher(mc mqtt.Client, prefix string, qos byte, timeout time.Duration) *Publisher {
	return &Publisher{client: mc, prefix: prefix, qos: qos, timeout: timeout}
}

// PublishOffer sends m to the offer topic of device.
func (p *Publisher) PublishOffer(device string, m OfferMessage) error {
	topic := NewTopics(p.prefix, device).Offer

	if !p.client.IsConnected() {
		return fmt.Errorf("%w: publish to %s", ErrNotConnected, topic)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode offer: %w", err)
	}

	if err := waitToken(p.client.Publish(topic, p.qos, false, payload), p.timeout); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	logger.Infof("Offered %s (%s) to %s", m.TargetVersion, m.URL, device)

	return nil
}
