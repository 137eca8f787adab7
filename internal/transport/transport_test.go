package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/eventbus"
	"github.com/netsentinel/agent/internal/types"
)

func TestHealthzReportsOK(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	srv := New(bus, func() bool { return true }, prometheus.NewRegistry())

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzReportsUnavailableWhenUnhealthy(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	srv := New(bus, func() bool { return false }, prometheus.NewRegistry())

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsServesRegisteredFamilies(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := New(bus, nil, reg)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketRelaysPublishedFlow(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	srv := New(bus, func() bool { return true }, prometheus.NewRegistry())

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		bus.PublishFlow(types.FlowEvent{SrcIP: "10.0.0.5", DstIP: "93.184.216.34", DstPort: 443})

		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		var env struct {
			Type    string `json:"type"`
			Payload types.FlowEvent
		}
		if err := conn.ReadJSON(&env); err != nil {
			return false
		}
		return env.Type == "flow" && env.Payload.DstPort == 443
	}, 2*time.Second, 50*time.Millisecond)
}
