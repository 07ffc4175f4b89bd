package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gr-butler/soilmonitor/env"
	logger "github.com/sirupsen/logrus"
)

const rpcQueueDepth = 16

// MQTT talks to the ThingsBoard device API over MQTT. The access token is
// sent as the username.
type MQTT struct {
	handlers
	timeout time.Duration

	mu     sync.Mutex
	client mqtt.Client
	queue  chan rpcRequest
}

func NewMQTT(timeout time.Duration) *MQTT {
	return &MQTT{
		timeout: timeout,
		queue:   make(chan rpcRequest, rpcQueueDepth),
	}
}

func (m *MQTT) Connect(ctx context.Context, endpoint, token string) error {
	broker := endpoint
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("soilmonitor-" + uuid.NewString()).
		SetUsername(token).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(m.timeout)

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect(), m.timeout); err != nil {
		return fmt.Errorf("connect %v: %w", broker, err)
	}
	if err := wait(ctx, client.Subscribe(env.RPCRequestTopic, 1, m.onRequest), m.timeout); err != nil {
		client.Disconnect(250)
		return fmt.Errorf("subscribe %v: %w", env.RPCRequestTopic, err)
	}

	m.mu.Lock()
	if m.client != nil {
		m.client.Disconnect(250)
	}
	m.client = client
	m.mu.Unlock()
	logger.Debugf("Connected to [%v]", broker)
	return nil
}

func wait(ctx context.Context, t mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.Done():
		return t.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onRequest runs on a paho goroutine, so it only queues.
func (m *MQTT) onRequest(_ mqtt.Client, msg mqtt.Message) {
	req := rpcRequest{}
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		logger.Errorf("Failed to decode RPC request [%v]", err)
		return
	}
	req.ID = msg.Topic()[strings.LastIndex(msg.Topic(), "/")+1:]
	select {
	case m.queue <- req:
	default:
		logger.Warnf("RPC queue full, dropping request [%v]", req.ID)
	}
}

func (m *MQTT) connected() mqtt.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil || !m.client.IsConnected() {
		return nil
	}
	return m.client
}

func (m *MQTT) PublishFloat(name string, value float64) error {
	client := m.connected()
	if client == nil {
		return ErrNotConnected
	}
	payload, err := floatPayload(name, value)
	if err != nil {
		return err
	}
	if err := wait(context.Background(), client.Publish(env.TelemetryTopic, 1, false, payload), m.timeout); err != nil {
		return fmt.Errorf("publish %v: %w", name, err)
	}
	return nil
}

func (m *MQTT) Housekeeping() {
	for {
		select {
		case req := <-m.queue:
			m.reply(req)
		default:
			return
		}
	}
}

func (m *MQTT) reply(req rpcRequest) {
	body := m.dispatch(req)
	client := m.connected()
	if client == nil {
		logger.Errorf("Failed to answer RPC %v [%v]", req.ID, ErrNotConnected)
		return
	}
	topic := env.RPCResponseTopic + req.ID
	if err := wait(context.Background(), client.Publish(topic, 1, false, body), m.timeout); err != nil {
		logger.Errorf("Failed to answer RPC %v [%v]", req.ID, err)
	}
}

func (m *MQTT) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
}
