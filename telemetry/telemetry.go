package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"
)

var ErrNotConnected = errors.New("telemetry not connected")

// RPCHandler answers a server side RPC. The returned value is sent back as
// the JSON response body.
type RPCHandler func(params json.RawMessage) (any, error)

// Publisher is a sink of named float values with server initiated RPC.
type Publisher interface {
	Connect(ctx context.Context, endpoint, token string) error
	PublishFloat(name string, value float64) error
	// Housekeeping services pending RPC requests on the caller's goroutine.
	Housekeeping()
	Handle(method string, h RPCHandler)
	Close()
}

type rpcRequest struct {
	ID     string          `json:"-"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Error string `json:"error"`
}

// handlers is shared by the transports.
type handlers struct {
	mu sync.Mutex
	m  map[string]RPCHandler
}

func (h *handlers) Handle(method string, fn RPCHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[string]RPCHandler)
	}
	h.m[method] = fn
}

// dispatch returns the encoded reply for req.
func (h *handlers) dispatch(req rpcRequest) []byte {
	h.mu.Lock()
	fn, ok := h.m[req.Method]
	h.mu.Unlock()

	var reply any
	if !ok {
		logger.Warnf("Unknown RPC method [%v]", req.Method)
		reply = rpcError{Error: fmt.Sprintf("unknown method %v", req.Method)}
	} else {
		logger.Infof("RPC [%v] params [%s]", req.Method, req.Params)
		v, err := fn(req.Params)
		if err != nil {
			logger.Errorf("Failed to handle RPC %v [%v]", req.Method, err)
			reply = rpcError{Error: err.Error()}
		} else {
			reply = v
		}
	}
	b, err := json.Marshal(reply)
	if err != nil {
		b, _ = json.Marshal(rpcError{Error: err.Error()})
	}
	return b
}

func floatPayload(name string, value float64) ([]byte, error) {
	return json.Marshal(map[string]float64{name: value})
}

// Sample is one value handed to a Recorder.
type Sample struct {
	Name  string
	Value float64
}

// Recorder keeps what it is given instead of sending it anywhere. It backs
// the -test mode and the station tests.
type Recorder struct {
	handlers
	mu          sync.Mutex
	FailConnect bool
	connected   bool
	Samples     []Sample
	Endpoint    string
	Token       string
	Connects    int
	Housekeeps  int
	pending     []rpcRequest
	Replies     []json.RawMessage
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Connect(ctx context.Context, endpoint, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Connects++
	r.Endpoint = endpoint
	r.Token = token
	if r.FailConnect {
		return fmt.Errorf("%v: %w", endpoint, ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.connected = true
	return nil
}

func (r *Recorder) PublishFloat(name string, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return ErrNotConnected
	}
	logger.Debugf("Recorded [%v] = [%v]", name, value)
	r.Samples = append(r.Samples, Sample{Name: name, Value: value})
	return nil
}

// Published returns a copy of what has been recorded so far.
func (r *Recorder) Published() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.Samples...)
}

// Inject queues an RPC request as if the server had sent it.
func (r *Recorder) Inject(method string, params json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, rpcRequest{Method: method, Params: params})
}

func (r *Recorder) Housekeeping() {
	r.mu.Lock()
	r.Housekeeps++
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, req := range pending {
		reply := r.dispatch(req)
		r.mu.Lock()
		r.Replies = append(r.Replies, reply)
		r.mu.Unlock()
	}
}

func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
}
