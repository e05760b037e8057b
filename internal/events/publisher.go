// Package events publishes notifications about synced users.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hiremind/authsync/internal/models"
	"github.com/streadway/amqp"
)

// RoutingKeyUserSynced is the routing key of models.UserSyncedEvent.
const RoutingKeyUserSynced = "user.synced"

// Publisher delivers domain events. Callers treat failures as non-fatal.
type Publisher interface {
	PublishUserSynced(ctx context.Context, evt models.UserSyncedEvent) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishUserSynced(context.Context, models.UserSyncedEvent) error { return nil }
func (NoopPublisher) Close() error { return nil }

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes JSON events to a topic exchange, opening one channel
// per publish.
type AMQPPublisher struct {
	conn        *amqp.Connection
	exchange    string
	openChannel func() (channel, error)
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials url and declares exchange as a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		openChannel: func() (channel, error) {
			return conn.Channel()
		},
	}, nil
}

func (p *AMQPPublisher) PublishUserSynced(_ context.Context, evt models.UserSyncedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := p.openChannel()
	if err != nil {
		return fmt.Errorf("failed to open amqp channel: %w", err)
	}
	defer ch.Close()

	return ch.Publish(
		p.exchange,
		RoutingKeyUserSynced,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    evt.At,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// NewUserSyncedEvent builds the event for a completed sync.
func NewUserSyncedEvent(rec *models.UserRecord, provider models.ProviderKind, created bool, at time.Time) models.UserSyncedEvent {
	return models.UserSyncedEvent{
		SubjectID: rec.SubjectID,
		Email:     rec.Email,
		Provider:  string(provider),
		Providers: rec.Providers.Strings(),
		Created:   created,
		At:        at,
	}
}
