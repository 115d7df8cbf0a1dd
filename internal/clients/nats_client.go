package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"airdrop-backend/internal/config"
	"airdrop-backend/internal/metrics"
	"airdrop-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ClaimEvent Claimed event as published by the chain scanner on airdrop.<chain>.Claimed
type ClaimEvent struct {
	ChainID     int64  `json:"chainId"`
	Token       string `json:"token"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"`
	TxHash      string `json:"txHash"`
	LogIndex    uint   `json:"logIndex"`
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp,omitempty"` // seconds
}

// DecodeClaimEvent parses and validates a claim event payload
func DecodeClaimEvent(data []byte) (*ClaimEvent, error) {
	var event ClaimEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("invalid claim event JSON: %w", err)
	}
	if event.ChainID <= 0 {
		return nil, fmt.Errorf("invalid claim event: chainId %d", event.ChainID)
	}
	if !utils.IsEvmAddress(event.Token) {
		return nil, fmt.Errorf("invalid claim event: token %q", event.Token)
	}
	if !utils.IsEvmAddress(event.Recipient) {
		return nil, fmt.Errorf("invalid claim event: recipient %q", event.Recipient)
	}
	if _, err := utils.ParseAmount(event.Amount); err != nil {
		return nil, fmt.Errorf("invalid claim event: %w", err)
	}
	if hash, err := hexutil.Decode(event.TxHash); err != nil || len(hash) != common.HashLength {
		return nil, fmt.Errorf("invalid claim event: txHash %q", event.TxHash)
	}
	return &event, nil
}

// ClaimEventHandler processes one decoded event.
// Subscriptions are core NATS (at-most-once): an event whose handler fails is logged and lost,
// and gaps are closed by the subgraph claim index or by republishing the event.
type ClaimEventHandler func(event *ClaimEvent, subject string) error

// NATSClient NATS client for claim event ingestion
type NATSClient struct {
	conn   *nats.Conn
	logger *logrus.Logger
}

// NewNATSClient connects to NATS with reconnect handling
func NewNATSClient(cfg config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	connectTimeout := time.Duration(cfg.Timeout) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	reconnectWait := time.Duration(cfg.ReconnectWait) * time.Second
	if reconnectWait <= 0 {
		reconnectWait = 5 * time.Second
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("airdrop-backend"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithField("error", err).Warn("⚠️ NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("🔌 NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			metrics.NATSConnectionStatus.Set(0)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)
	logger.WithField("url", conn.ConnectedUrl()).Info("✅ NATS connected")

	return &NATSClient{conn: conn, logger: logger}, nil
}

// SubscribeToClaims subscribes to claim events, joining queueGroup when set
func (c *NATSClient) SubscribeToClaims(subject, queueGroup string, handler ClaimEventHandler) error {
	msgHandler := func(msg *nats.Msg) {
		c.dispatchClaim(msg, handler)
	}

	var err error
	if queueGroup != "" {
		_, err = c.conn.QueueSubscribe(subject, queueGroup, msgHandler)
	} else {
		_, err = c.conn.Subscribe(subject, msgHandler)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.logger.WithFields(logrus.Fields{
		"subject":     subject,
		"queue_group": queueGroup,
	}).Info("📨 Subscribed to claim events")
	return nil
}

// dispatchClaim decodes one message and hands it to handler once. Reports whether the event was stored.
func (c *NATSClient) dispatchClaim(msg *nats.Msg, handler ClaimEventHandler) bool {
	event, err := DecodeClaimEvent(msg.Data)
	if err != nil {
		metrics.ClaimEventsReceived.WithLabelValues("invalid").Inc()
		c.logger.WithFields(logrus.Fields{
			"subject": msg.Subject,
			"error":   err.Error(),
		}).Warn("❌ Dropping malformed claim event")
		return false
	}
	if err := handler(event, msg.Subject); err != nil {
		metrics.ClaimEventsReceived.WithLabelValues("error").Inc()
		c.logger.WithFields(logrus.Fields{
			"subject": msg.Subject,
			"tx_hash": event.TxHash,
			"error":   err.Error(),
		}).Error("❌ Failed to process claim event, event dropped")
		return false
	}
	// request-style publishers learn the event was stored
	if msg.Reply != "" {
		_ = msg.Respond([]byte("ok"))
	}
	return true
}

// Close drains subscriptions and closes the connection
func (c *NATSClient) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
