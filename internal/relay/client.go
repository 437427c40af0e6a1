// Package relay maintains the websocket connections to the Nostr relays,
// turns inbound kind-9735 events into typed zap receipts and broadcasts
// signed outbound events.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/davidebtc/zapboard/internal/zap"
	"github.com/davidebtc/zapboard/pkg/logger"
	"github.com/davidebtc/zapboard/pkg/nostr"
)

const (
	// ReceiptChannelBuffer absorbs short bursts of receipts arriving from
	// several relays at once.
	ReceiptChannelBuffer = 64

	// reconnectDelay is the wait before redialing a dropped relay.
	reconnectDelay = 5 * time.Second

	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

type Client struct {
	logger       *logger.Logger
	urls         []string
	ownPubkey    string
	allowSelfZap bool

	receipts chan *zap.Receipt

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewClient(urls []string, ownPubkey string, allowSelfZap bool, logger *logger.Logger) *Client {
	return &Client{
		logger:       logger,
		urls:         urls,
		ownPubkey:    ownPubkey,
		allowSelfZap: allowSelfZap,
		receipts:     make(chan *zap.Receipt, ReceiptChannelBuffer),
		conns:        make(map[string]*websocket.Conn),
	}
}

func (c *Client) Receipts() <-chan *zap.Receipt {
	return c.receipts
}

// Subscribe opens one long-lived connection per configured relay and
// requests zap receipts newer than since. Dropped connections are redialed
// until ctx ends.
func (c *Client) Subscribe(ctx context.Context, since int64) error {
	subID := "zaps_" + uuid.NewString()[:8]
	for _, url := range c.urls {
		go c.watchRelay(ctx, url, subID, since)
	}
	c.logger.Info("Listening for zap receipts ", "relays ", len(c.urls), "since ", since)
	return nil
}

func (c *Client) watchRelay(ctx context.Context, url, subID string, since int64) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.runRelay(ctx, url, subID, since); err != nil {
			c.logger.Warn("Relay connection lost ", "relay ", url, "error ", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		c.logger.Debug("Redialing relay ", "relay ", url)
	}
}

func (c *Client) runRelay(ctx context.Context, url, subID string, since int64) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial relay: %w", err)
	}

	c.mu.Lock()
	c.conns[url] = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.conns, url)
		c.mu.Unlock()
		conn.Close()
	}()

	req, err := json.Marshal([]interface{}{
		"REQ", subID,
		map[string]interface{}{"kinds": []int{nostr.KindZapReceipt}, "since": since},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal subscription request: %w", err)
	}
	if err := c.write(conn, req); err != nil {
		return fmt.Errorf("failed to send subscription request: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read relay message: %w", err)
		}
		c.handleMessage(url, raw)
	}
}

// handleMessage decodes one relay frame and forwards matching receipts.
func (c *Client) handleMessage(url string, raw []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 2 {
		return
	}
	var kind string
	if err := json.Unmarshal(frame[0], &kind); err != nil {
		return
	}

	switch kind {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var event nostr.Event
		if err := json.Unmarshal(frame[2], &event); err != nil {
			c.logger.Debug("Dropping undecodable event ", "relay ", url, "error ", err)
			return
		}
		if ok, err := event.Verify(); err != nil || !ok {
			c.logger.Debug("Dropping event with invalid signature ", "relay ", url, "id ", event.ID)
			return
		}
		receipt := ExtractReceipt(&event, c.ownPubkey, c.allowSelfZap)
		if receipt == nil {
			return
		}
		select {
		case c.receipts <- receipt:
		default:
			c.logger.Warn("Receipt channel full, dropping receipt ", "receipt ", receipt.ID)
		}
	case "NOTICE":
		c.logger.Warn("Relay notice ", "relay ", url, "notice ", string(raw))
	}
}

// Publish broadcasts a signed event to every live relay connection and,
// one-shot, to any extra relays the zap request advertised.
func (c *Client) Publish(event *nostr.Event, extraRelays []string) error {
	frame, err := json.Marshal([]interface{}{"EVENT", event})
	if err != nil {
		return fmt.Errorf("failed to marshal event frame: %w", err)
	}

	c.mu.Lock()
	conns := make(map[string]*websocket.Conn, len(c.conns))
	for url, conn := range c.conns {
		conns[url] = conn
	}
	c.mu.Unlock()

	sent := 0
	for _, url := range c.urls {
		conn, live := conns[url]
		if !live {
			// no subscription running (or the relay dropped); deliver one-shot
			if err := c.publishOnce(url, frame); err != nil {
				c.logger.Warn("Failed to publish event ", "relay ", url, "error ", err)
				continue
			}
			sent++
			continue
		}
		if err := c.write(conn, frame); err != nil {
			c.logger.Warn("Failed to publish event ", "relay ", url, "error ", err)
			continue
		}
		sent++
	}

	for _, url := range extraRelays {
		if _, live := conns[url]; live || contains(c.urls, url) {
			// already covered by a configured relay
			continue
		}
		if err := c.publishOnce(url, frame); err != nil {
			c.logger.Warn("Failed to publish to extra relay ", "relay ", url, "error ", err)
			continue
		}
		sent++
	}

	if sent == 0 {
		return fmt.Errorf("failed to publish event %s to any relay", event.ID)
	}
	c.logger.Debug("Published event ", "id ", event.ID, "relays ", sent)
	return nil
}

// publishOnce dials a relay just to deliver one event, mirroring the relay
// hints a zap request can carry.
func (c *Client) publishOnce(url string, frame []byte) error {
	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial relay: %w", err)
	}
	defer conn.Close()

	if err := c.write(conn, frame); err != nil {
		return err
	}
	// give the relay a moment to take the event before hanging up
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.ReadMessage()
	return nil
}

// write serializes writes on a connection; gorilla/websocket allows only one
// concurrent writer.
func (c *Client) write(conn *websocket.Conn, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = make(map[string]*websocket.Conn)
}
