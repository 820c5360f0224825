package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wyolum/home-monitor/internal/config"
	"github.com/wyolum/home-monitor/internal/metrics"
	"github.com/wyolum/home-monitor/internal/modules/airquality/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Subscriber struct {
	client     mqtt.Client
	cfg        config.Config
	logger     *slog.Logger
	mu         sync.RWMutex
	connected  bool
	subscribed bool

	stopCh   chan struct{}
	stopOnce sync.Once

	// ctx is handed to the message handler and cancelled on Disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	// now stamps each message on receipt.
	now func() time.Time

	handlerMu sync.RWMutex
	handler   func(ctx context.Context, raw types.RawRecord) error
}

// MQTTSubscriber interface for attaching message handlers
type MQTTSubscriber interface {
	SetMessageHandler(handler func(ctx context.Context, raw types.RawRecord) error)
}

// SetMessageHandler sets the handler invoked once per decoded message.
func (s *Subscriber) SetMessageHandler(handler func(ctx context.Context, raw types.RawRecord) error) {
	s.handlerMu.Lock()
	s.handler = handler
	s.handlerMu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MQTTTopic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)

		// A clean session drops subscriptions; restore them after a reconnect.
		s.mu.RLock()
		resubscribe := s.subscribed
		s.mu.RUnlock()
		if resubscribe {
			go func() {
				if err := s.subscribe(); err != nil {
					logger.Error("mqtt resubscribe failed", "topic", cfg.MQTTTopic, "error", err)
				}
			}()
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Connect establishes connection to the MQTT broker and subscribes to the configured topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// The OnConnect callback runs on its own goroutine; don't wait for it.
			s.setConnected(true)
			break
		}

		select {
		case <-ctx.Done():
			// paho keeps retrying; subscribe once it gets through.
			go s.awaitConnect(token, poll)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}

	if err := s.subscribe(); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe: %w", err)
	}

	return nil
}

func (s *Subscriber) awaitConnect(token mqtt.Token, poll time.Duration) {
	for !token.WaitTimeout(poll) {
		select {
		case <-s.stopCh:
			return
		default:
		}
	}
	if err := token.Error(); err != nil {
		s.logger.Error("mqtt connect failed", "error", err)
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	s.setConnected(true)
	if err := s.subscribe(); err != nil {
		s.logger.Error("mqtt subscribe failed", "topic", s.cfg.MQTTTopic, "error", err)
	}
}

func (s *Subscriber) subscribe() error {
	if !s.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := s.cfg.MQTTTopic
	qos := byte(1) // At least once delivery; the store drops redeliveries.

	messageHandler := func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	}

	token := s.client.Subscribe(topic, qos, messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

// handleMessage decodes one state message and passes it to the handler.
// Malformed messages are logged and dropped.
func (s *Subscriber) handleMessage(topic string, payload []byte) {
	receivedAt := s.now()
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	values, err := types.DecodePayload(payload)
	if err != nil {
		metrics.RecordIngest(metrics.ResultMalformed)
		s.logger.Warn("dropped malformed message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	raw := types.RawRecord{ReceivedAt: receivedAt, Values: values}
	if err := handler(s.ctx, raw); err != nil {
		if errors.Is(err, types.ErrMalformedPayload) {
			s.logger.Warn("dropped malformed message",
				"topic", topic,
				"error", err,
			)
			return
		}
		s.logger.Error("message handler failed",
			"topic", topic,
			"error", err,
		)
	}
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	// Quiesce: paho waits up to 250ms for in-flight work before closing.
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.cancel()

	s.mu.Lock()
	s.subscribed = false
	s.mu.Unlock()
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
	metrics.SetMQTTConnected(v)
}
