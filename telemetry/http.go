package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-querystring/query"
	logger "github.com/sirupsen/logrus"
)

type attributesQuery struct {
	SharedKeys string `url:"sharedKeys"`
}

type rpcPollQuery struct {
	Timeout int64 `url:"timeout"`
}

type httpRPC struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// HTTP talks to the ThingsBoard device HTTP API. RPC is picked up with a
// single long poll per connection.
type HTTP struct {
	handlers
	client  *http.Client
	rpcPoll time.Duration

	mu     sync.Mutex
	base   string
	polled bool
}

func NewHTTP(timeout, rpcPoll time.Duration) *HTTP {
	return &HTTP{
		client:  &http.Client{Timeout: timeout + rpcPoll},
		rpcPoll: rpcPoll,
	}
}

func (h *HTTP) Connect(ctx context.Context, endpoint, token string) error {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	base := fmt.Sprintf("%s/api/v1/%s", strings.TrimRight(endpoint, "/"), token)

	v, err := query.Values(attributesQuery{SharedKeys: "interval"})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/attributes?"+v.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect %v: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect %v: %v: %w", endpoint, resp.Status, ErrNotConnected)
	}

	h.mu.Lock()
	h.base = base
	h.polled = false
	h.mu.Unlock()
	return nil
}

func (h *HTTP) baseURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.base
}

func (h *HTTP) post(url string, body []byte) error {
	resp, err := h.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%v", resp.Status)
	}
	return nil
}

func (h *HTTP) PublishFloat(name string, value float64) error {
	base := h.baseURL()
	if base == "" {
		return ErrNotConnected
	}
	payload, err := floatPayload(name, value)
	if err != nil {
		return err
	}
	if err := h.post(base+"/telemetry", payload); err != nil {
		return fmt.Errorf("publish %v: %w", name, err)
	}
	return nil
}

func (h *HTTP) Housekeeping() {
	h.mu.Lock()
	base, polled := h.base, h.polled
	h.polled = true
	h.mu.Unlock()
	if base == "" || polled {
		return
	}

	req, err := h.poll(base)
	if err != nil {
		logger.Errorf("Failed to poll RPC [%v]", err)
		return
	}
	if req == nil {
		return
	}
	body := h.dispatch(*req)
	if err := h.post(fmt.Sprintf("%s/rpc/%s", base, req.ID), body); err != nil {
		logger.Errorf("Failed to answer RPC %v [%v]", req.ID, err)
	}
}

func (h *HTTP) poll(base string) (*rpcRequest, error) {
	v, err := query.Values(rpcPollQuery{Timeout: h.rpcPoll.Milliseconds()})
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Get(base + "/rpc?" + v.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusRequestTimeout, http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("%v", resp.Status)
	}

	in := httpRPC{}
	if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
		return nil, err
	}
	return &rpcRequest{ID: fmt.Sprint(in.ID), Method: in.Method, Params: in.Params}, nil
}

func (h *HTTP) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = ""
	h.client.CloseIdleConnections()
}
