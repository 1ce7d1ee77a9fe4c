package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// OrderConfirmation is the payload handed to the notification consumers
// (email sender, fulfillment dashboard). Published exactly once per order,
// by the finalize winner.
type OrderConfirmation struct {
	EventID         uuid.UUID          `json:"event_id"`
	OrderID         uuid.UUID          `json:"order_id"`
	OrderNumber     string             `json:"order_number"`
	CustomerName    string             `json:"customer_name"`
	CustomerEmail   string             `json:"customer_email"`
	Total           float64            `json:"total"`
	Currency        string             `json:"currency"`
	Items           []ConfirmationItem `json:"items"`
	ShippingAddress string             `json:"shipping_address"`
	Timestamp       time.Time          `json:"timestamp"`
}

type ConfirmationItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// Publisher publishes order notifications to the topic exchange.
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// PublishOrderConfirmation sends the confirmation as a persistent message.
func (p *Publisher) PublishOrderConfirmation(confirmation OrderConfirmation) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("no connection to broker")
	}

	if confirmation.EventID == uuid.Nil {
		confirmation.EventID = uuid.New()
	}
	if confirmation.Timestamp.IsZero() {
		confirmation.Timestamp = time.Now()
	}

	body, err := json.Marshal(confirmation)
	if err != nil {
		return fmt.Errorf("confirmation serialization: %w", err)
	}

	channel := p.client.Channel()
	if channel == nil {
		return fmt.Errorf("no channel to broker")
	}

	return channel.Publish(
		p.client.Exchange(),
		"order.confirmation",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    confirmation.EventID.String(),
			Timestamp:    confirmation.Timestamp,
			Headers: amqp.Table{
				"order_id": confirmation.OrderID.String(),
			},
		},
	)
}
