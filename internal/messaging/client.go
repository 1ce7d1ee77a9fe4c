package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

const (
	connectRetries    = 3
	connectRetryDelay = 5 * time.Second
)

// Client wraps an AMQP connection and channel behind a mutex so publishers
// can be used from concurrent request handlers.
type Client struct {
	url      string
	exchange string

	mu         sync.RWMutex
	connection *amqp.Connection
	channel    *amqp.Channel
	closing    bool
}

func NewClient(url, exchange string) *Client {
	return &Client{url: url, exchange: exchange}
}

// Connect dials the broker and declares the notification exchange.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := 0; i < connectRetries; i++ {
		c.connection, err = amqp.Dial(c.url)
		if err != nil {
			log.Printf("[AMQP] connection error (attempt %d/%d): %v", i+1, connectRetries, err)
			if i < connectRetries-1 {
				time.Sleep(connectRetryDelay)
				continue
			}
			return fmt.Errorf("connect to broker: %w", err)
		}

		c.channel, err = c.connection.Channel()
		if err != nil {
			c.connection.Close()
			return fmt.Errorf("open channel: %w", err)
		}

		if err := c.channel.ExchangeDeclare(
			c.exchange,
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			c.channel.Close()
			c.connection.Close()
			return fmt.Errorf("declare exchange: %w", err)
		}

		go c.watchConnection()
		return nil
	}
	return err
}

func (c *Client) watchConnection() {
	notifyClose := make(chan *amqp.Error)
	c.connection.NotifyClose(notifyClose)

	if err := <-notifyClose; err != nil {
		c.mu.RLock()
		closing := c.closing
		c.mu.RUnlock()
		if !closing {
			log.Printf("[AMQP] connection lost: %v, reconnecting", err)
			time.Sleep(2 * time.Second)
			if reconnectErr := c.Connect(); reconnectErr != nil {
				log.Printf("[AMQP] reconnect failed: %v", reconnectErr)
			}
		}
	}
}

// Channel returns the current channel, or nil when disconnected.
func (c *Client) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Exchange returns the declared exchange name.
func (c *Client) Exchange() string {
	return c.exchange
}

// IsConnected reports whether the connection is usable.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connection != nil && !c.connection.IsClosed()
}

// Close shuts the channel and connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return nil
	}
	c.closing = true

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Printf("[AMQP] channel close: %v", err)
		}
	}
	if c.connection != nil {
		return c.connection.Close()
	}
	return nil
}
