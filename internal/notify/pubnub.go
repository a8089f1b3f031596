package notify

import (
	"context"
	"encoding/json"
	"fmt"

	pubnubgo "github.com/pubnub/go/v7"
)

var _ Publisher = (*PubNubPublisher)(nil)

// PubNubConfig holds the PubNub credentials.
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	SenderUUID   string
}

// PubNubPublisher publishes notifications to per-user channels.
type PubNubPublisher struct {
	pn *pubnubgo.PubNub
}

// NewPubNubPublisher constructs a PubNubPublisher.
func NewPubNubPublisher(cfg PubNubConfig) (*PubNubPublisher, error) {
	if cfg.PublishKey == "" || cfg.SubscribeKey == "" {
		return nil, fmt.Errorf("pubnub publish and subscribe keys are required")
	}

	pnCfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(cfg.SenderUUID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey

	return &PubNubPublisher{pn: pubnubgo.NewPubNub(pnCfg)}, nil
}

// Publish sends the message to the user's channel and returns the publish
// timetoken.
func (p *PubNubPublisher) Publish(ctx context.Context, userID string, message any) (string, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	channel := fmt.Sprintf("user-%s", userID)
	resp, _, err := p.pn.Publish().Channel(channel).Message(string(payload)).Execute()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return fmt.Sprintf("%d", resp.Timestamp), nil
}
