package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/flybeeper/fsd-airspace/internal/config"
	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// ErrNotConnected клиент не подключен к брокеру
var ErrNotConnected = errors.New("MQTT client is not connected")

// Sink приемник сетевых событий (Local контекст воздушного пространства)
type Sink interface {
	OnPositionUpdate(s models.AircraftSituation, transponder *models.Transponder) error
	OnPartsUpdate(cs models.Callsign, parts models.AircraftParts, incremental bool) error
	OnPartsSupport(cs models.Callsign, supported bool)
	OnAtcStationUpdate(st models.AtcStation, isOnline bool) error
	OnAtcText(cs models.Callsign, atis, metar string)
	OnAircraftRemoved(cs models.Callsign) error
	OnConnectionStatusChanged(from, to models.ConnectionStatus) error
}

// Client MQTT клиент, получающий события FSD сети от моста
type Client struct {
	client    mqtt.Client
	config    *config.MQTTConfig
	logger    *utils.Logger
	parser    *Parser
	sink      Sink
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	mu        sync.RWMutex
}

// NewClient создает новый MQTT клиент
func NewClient(cfg *config.MQTTConfig, logger *utils.Logger, sink Sink) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: cfg,
		logger: logger.WithComponent("mqtt"),
		parser: NewParser(cfg.TopicPrefix, logger),
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	// события одного позывного должны приходить в реестр по порядку
	opts.SetOrderMatters(cfg.OrderMatters)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	topic := c.parser.prefix + "/#"

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()

		c.logger.WithField("broker", cfg.URL).Info("Connected to MQTT broker")
		metrics.MQTTConnectionStatus.Set(1)

		if token := client.Subscribe(topic, 1, c.messageHandler()); token.Wait() && token.Error() != nil {
			c.logger.WithFields(map[string]interface{}{
				"topic": topic,
				"error": token.Error(),
			}).Error("Failed to subscribe to topic")
		} else {
			c.logger.WithField("topic", topic).Info("Subscribed to MQTT topic")
		}
	})

	// Потеря брокера не равна потере FSD сети: о ней мост сообщает событием connection
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.logger.WithField("error", err).Warn("Lost connection to MQTT broker")
		metrics.MQTTConnectionStatus.Set(0)
	})

	c.client = mqtt.NewClient(opts)

	return c, nil
}

// Connect подключается к MQTT брокеру
func (c *Client) Connect() error {
	c.logger.WithField("broker", c.config.URL).Info("Connecting to MQTT broker")

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("connection timeout")
		case <-ticker.C:
			if c.IsConnected() {
				return nil
			}
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

// Disconnect отключается от MQTT брокера
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")

	c.cancel()

	if c.client.IsConnected() {
		c.client.Disconnect(1000)
	}

	c.logger.Info("MQTT client disconnected")
}

// IsConnected проверяет статус подключения
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// messageHandler обрабатывает сообщения в горутине paho, чтобы сохранить порядок
func (c *Client) messageHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		c.HandleMessage(msg.Topic(), msg.Payload())
	}
}

// HandleMessage разбирает и доставляет одно сообщение
func (c *Client) HandleMessage(topic string, payload []byte) {
	ev, err := c.parser.Parse(topic, payload)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"topic":        topic,
			"error":        err,
			"payload_size": len(payload),
		}).Warn("Failed to parse network event")
		metrics.MQTTParseErrors.Inc()
		return
	}
	if ev == nil {
		return
	}

	if err := Dispatch(c.sink, ev); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"topic":      topic,
			"event_type": ev.Type,
			"callsign":   ev.Callsign,
			"error":      err,
		}).Warn("Network event rejected")
		return
	}

	metrics.MQTTMessagesReceived.WithLabelValues(string(ev.Type)).Inc()
	c.logger.WithFields(map[string]interface{}{
		"event_type": ev.Type,
		"callsign":   ev.Callsign,
	}).Debug("Network event processed")
}

// Dispatch доставляет событие в приемник
func Dispatch(sink Sink, ev *Event) error {
	switch ev.Type {
	case EventPosition, EventFastPosition:
		return sink.OnPositionUpdate(*ev.Situation, ev.Transponder)
	case EventParts:
		return sink.OnPartsUpdate(ev.Callsign, *ev.Parts, ev.Incremental)
	case EventPartsSupport:
		sink.OnPartsSupport(ev.Callsign, ev.PartsSupported)
		return nil
	case EventAtc:
		return sink.OnAtcStationUpdate(*ev.Atc, ev.Online)
	case EventAtcText:
		sink.OnAtcText(ev.Callsign, ev.Atis, ev.Metar)
		return nil
	case EventRemoved:
		return sink.OnAircraftRemoved(ev.Callsign)
	case EventConnection:
		return sink.OnConnectionStatusChanged(ev.From, ev.To)
	default:
		return fmt.Errorf("unsupported event type: %s", ev.Type)
	}
}

// Ping для /health
func (c *Client) Ping(context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// GetStats возвращает статистику клиента
func (c *Client) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"connected":     c.connected,
		"client_id":     c.config.ClientID,
		"broker_url":    c.config.URL,
		"topic_prefix":  c.config.TopicPrefix,
		"clean_session": c.config.CleanSession,
	}
}

// PublishMessage отправляет сообщение в MQTT топик (для отладки)
func (c *Client) PublishMessage(topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	c.logger.WithFields(map[string]interface{}{
		"topic":        topic,
		"payload_size": len(payload),
		"qos":          qos,
		"retained":     retained,
	}).Debug("Published MQTT message")

	return nil
}
