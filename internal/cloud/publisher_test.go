package cloud_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/otad/internal/cloud"
)

func TestPublishOffer(t *testing.T) {
	fake := newFakeMQTT()
	p := cloud.NewPublisher(fake, "welink", 1, time.Second)

	msg := cloud.OfferMessage{TargetVersion: "3.0.2", MD5: "abc", URL: "http://fw/x.bin", PkgSize: 10}
	require.NoError(t, p.PublishOffer("dev-1", msg))

	sent := fake.messages(topics.Offer)
	require.Len(t, sent, 1)
	assert.Equal(t, byte(1), sent[0].qos)

	var got cloud.OfferMessage
	require.NoError(t, json.Unmarshal(sent[0].payload, &got))
	assert.Equal(t, msg, got)
}

func TestPublishOfferNotConnected(t *testing.T) {
	fake := newFakeMQTT()
	fake.connected = false

	err := cloud.NewPublisher(fake, "welink", 0, time.Second).PublishOffer("dev-1", cloud.OfferMessage{})
	require.ErrorIs(t, err, cloud.ErrNotConnected)
	assert.Empty(t, fake.messages(topics.Offer))
}
