package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// PaymentActorID is recorded as UpdatedBy for gateway-driven transitions.
const PaymentActorID = "payment-gateway"

// Config names the topology the consumer declares on start.
type Config struct {
	Exchange string
	Queue    string
}

// paymentEvent is the message published by the payment gateway.
type paymentEvent struct {
	ParcelID         string `json:"parcel_id"`
	TrackingNumber   string `json:"tracking_number"`
	PaymentReference string `json:"payment_reference"`
	Status           string `json:"status"`
}

type outcome int

const (
	ack outcome = iota
	requeue
	discard
)

// PaymentConsumer applies payment confirmations from RabbitMQ.
type PaymentConsumer struct {
	ch       *amqp.Channel
	cfg      Config
	payments ports.PaymentService
	logger   zerolog.Logger
}

func NewPaymentConsumer(ch *amqp.Channel, cfg Config, payments ports.PaymentService, logger zerolog.Logger) *PaymentConsumer {
	if cfg.Exchange == "" {
		cfg.Exchange = "payments"
	}
	if cfg.Queue == "" {
		cfg.Queue = "parcel_service_payments"
	}
	return &PaymentConsumer{ch: ch, cfg: cfg, payments: payments, logger: logger}
}

// Run declares the queue, binds it to the fanout exchange and consumes
// until ctx is cancelled or the channel closes.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := c.ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, "", c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := c.ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info().Str("exchange", c.cfg.Exchange).Str("queue", q.Name).Msg("payment consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return errors.New("payment channel closed")
			}
			c.settle(m, c.handle(ctx, m.Body))
		}
	}
}

func (c *PaymentConsumer) settle(m amqp.Delivery, o outcome) {
	var err error
	switch o {
	case ack:
		err = m.Ack(false)
	case requeue:
		err = m.Nack(false, !m.Redelivered)
	case discard:
		err = m.Nack(false, false)
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("settle payment message")
	}
}

// handle decides the fate of one message. Business rejections are acked so
// they are not redelivered forever; transient failures are requeued once.
func (c *PaymentConsumer) handle(ctx context.Context, body []byte) outcome {
	var ev paymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Warn().Err(err).Msg("malformed payment event")
		return discard
	}

	if s := strings.ToUpper(ev.Status); s != "" && s != "SUCCEEDED" && s != "CONFIRMED" {
		c.logger.Info().Str("parcel_id", ev.ParcelID).Str("status", ev.Status).Msg("ignoring payment event")
		return ack
	}

	p, err := c.payments.ConfirmPayment(ctx, ports.PaymentConfirmation{
		ParcelID:         ev.ParcelID,
		TrackingNumber:   ev.TrackingNumber,
		PaymentReference: ev.PaymentReference,
		ActorID:          PaymentActorID,
	})
	switch {
	case err == nil:
		c.logger.Info().Str("parcel_id", p.ID).Str("reference", ev.PaymentReference).Msg("payment applied")
		return ack
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrValidation):
		c.logger.Warn().Err(err).Str("parcel_id", ev.ParcelID).Msg("payment event rejected")
		return ack
	default:
		c.logger.Error().Err(err).Str("parcel_id", ev.ParcelID).Msg("payment event failed")
		return requeue
	}
}
