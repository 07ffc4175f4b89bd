package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gr-butler/soilmonitor/env"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	deviceToken = "A1_TEST_TOKEN"
	serverUser  = "thingsboard"
)

type message struct {
	topic   string
	payload string
}

func freeAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startBroker runs an in-process broker that only admits the device token
// and the test's own server side client.
func startBroker(t *testing.T) string {
	ledger := &auth.Ledger{
		Auth: auth.AuthRules{
			{Username: auth.RString(deviceToken), Allow: true},
			{Username: auth.RString(serverUser), Allow: true},
		},
	}

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}))

	addr := freeAddress(t)
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "t1",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })
	return addr
}

// serverSide subscribes to filter and forwards everything it sees.
func serverSide(t *testing.T, addr, filter string) (mqtt.Client, chan message) {
	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + addr).
		SetClientID("server-side").
		SetUsername(serverUser)
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	t.Cleanup(func() { client.Disconnect(100) })

	got := make(chan message, 8)
	tok = client.Subscribe(filter, 1, func(_ mqtt.Client, msg mqtt.Message) {
		got <- message{topic: msg.Topic(), payload: string(msg.Payload())}
	})
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	return client, got
}

func TestMQTTPublishFloat(t *testing.T) {
	addr := startBroker(t)
	_, got := serverSide(t, addr, env.TelemetryTopic)

	m := NewMQTT(5 * time.Second)
	require.NoError(t, m.Connect(context.Background(), addr, deviceToken))
	defer m.Close()

	require.NoError(t, m.PublishFloat(env.Temperature, 22.5))
	require.NoError(t, m.PublishFloat(env.Humidity, 45))

	for _, want := range []string{`{"Temperature":22.5}`, `{"Humidity":45}`} {
		select {
		case msg := <-got:
			assert.Equal(t, env.TelemetryTopic, msg.topic)
			assert.JSONEq(t, want, msg.payload)
		case <-time.After(5 * time.Second):
			t.Fatalf("no telemetry for %v", want)
		}
	}
}

func TestMQTTRejectsUnknownToken(t *testing.T) {
	addr := startBroker(t)

	m := NewMQTT(2 * time.Second)
	err := m.Connect(context.Background(), addr, "not-a-device")
	require.Error(t, err)
	assert.ErrorIs(t, m.PublishFloat(env.Temperature, 1), ErrNotConnected)
}

func TestMQTTPublishBeforeConnect(t *testing.T) {
	m := NewMQTT(time.Second)
	assert.ErrorIs(t, m.PublishFloat(env.SoilMoisture, 1200), ErrNotConnected)
	m.Housekeeping()
	m.Close()
}

func TestMQTTRPCRoundTrip(t *testing.T) {
	addr := startBroker(t)
	server, replies := serverSide(t, addr, env.RPCResponseTopic+"+")

	interval := 60
	m := NewMQTT(5 * time.Second)
	m.Handle("getValue", func(json.RawMessage) (any, error) {
		return interval, nil
	})
	m.Handle("setValue", func(params json.RawMessage) (any, error) {
		if err := json.Unmarshal(params, &interval); err != nil {
			return nil, err
		}
		return interval, nil
	})
	require.NoError(t, m.Connect(context.Background(), addr, deviceToken))
	defer m.Close()

	call := func(id int, body string) message {
		tok := server.Publish(fmt.Sprintf("%s%d", "v1/devices/me/rpc/request/", id), 1, false, body)
		require.True(t, tok.WaitTimeout(5*time.Second))
		require.NoError(t, tok.Error())

		var reply message
		require.Eventually(t, func() bool {
			m.Housekeeping()
			select {
			case reply = <-replies:
				return true
			default:
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)
		return reply
	}

	reply := call(7, `{"method":"getValue","params":null}`)
	assert.Equal(t, env.RPCResponseTopic+"7", reply.topic)
	assert.Equal(t, "60", reply.payload)

	reply = call(8, `{"method":"setValue","params":120}`)
	assert.Equal(t, env.RPCResponseTopic+"8", reply.topic)
	assert.Equal(t, "120", reply.payload)
	assert.Equal(t, 120, interval)

	reply = call(9, `{"method":"reboot","params":{}}`)
	assert.JSONEq(t, `{"error":"unknown method reboot"}`, reply.payload)
}
