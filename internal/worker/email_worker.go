package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/techserve/support-api/internal/config"
	"github.com/techserve/support-api/internal/model"
	"github.com/techserve/support-api/internal/repository"
)

const (
	emailQueueName = "order.emails"
	dlxExchange    = "order.emails.dlx"
	dlqQueueName   = "order.emails.dlq"
	idempotencyTTL = 24 * time.Hour
)

// EmailWorker consumes order.created messages and fires the confirmation
// email through the external send endpoint. Sending is best effort: a failed
// send is logged and acked so it can never block or fail a checkout that the
// payment gateway has already accepted.
type EmailWorker struct {
	channel     *amqp.Channel
	orderRepo   repository.OrderRepository
	redisClient *redis.Client
	httpClient  *http.Client
	cfg         config.EmailConfig
	log         *slog.Logger
	done        chan struct{}
}

func NewEmailWorker(
	ch *amqp.Channel,
	orderRepo repository.OrderRepository,
	redisClient *redis.Client,
	cfg config.EmailConfig,
	log *slog.Logger,
) *EmailWorker {
	return &EmailWorker{
		channel:     ch,
		orderRepo:   orderRepo,
		redisClient: redisClient,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cfg:         cfg,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetupRabbitMQ declares the email queue and its DLX/DLQ.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, emailQueueName, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(emailQueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": emailQueueName,
	}); err != nil {
		return fmt.Errorf("declare email queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *EmailWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(emailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("email worker started")
	return nil
}

func (w *EmailWorker) Stop() { close(w.done) }

func (w *EmailWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var emailMsg model.OrderEmailMessage
	if err := json.Unmarshal(msg.Body, &emailMsg); err != nil {
		w.log.Error("unmarshal email message", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("order_id", emailMsg.OrderID, "user_id", emailMsg.UserID)

	idempotencyKey := "email_sent:" + emailMsg.OrderID.String()
	exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("confirmation email already sent, skipping")
		_ = msg.Ack(false)
		return
	}

	order, err := w.orderRepo.GetByID(ctx, emailMsg.OrderID)
	if err != nil {
		log.Error("load order", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if order == nil {
		log.Error("order not found")
		_ = msg.Nack(false, false) // → DLQ
		return
	}

	if err := w.sendConfirmation(ctx, order); err != nil {
		// Best effort: the order stands whether or not the email lands.
		log.Error("send confirmation email", "error", err)
		_ = msg.Ack(false)
		return
	}

	if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("confirmation email sent")
}

type confirmationPayload struct {
	To          string `json:"to"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	OrderID     string `json:"order_id"`
	TotalAmount string `json:"total_amount"`
	ItemCount   int    `json:"item_count"`
}

func (w *EmailWorker) sendConfirmation(ctx context.Context, order *model.Order) error {
	payload := confirmationPayload{
		To:          order.CustomerEmail,
		From:        w.cfg.FromAddress,
		Subject:     fmt.Sprintf("Order confirmation %s", order.ID),
		OrderID:     order.ID.String(),
		TotalAmount: order.TotalAmount.StringFixed(2),
		ItemCount:   len(order.Items),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal confirmation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call email endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("email endpoint returned %d", resp.StatusCode)
	}
	return nil
}
