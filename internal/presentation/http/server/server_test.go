package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
}

func TestServerServesOnBoundAddress(t *testing.T) {
	srv := New(pingHandler(), Options{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}, nil)
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	served := make(chan error, 1)
	go func() { served <- srv.Start() }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener never bound")
	}
	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "pong", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-served, "a clean shutdown is not an error")
}

func TestServerStartFailsWhenAddressTaken(t *testing.T) {
	busy := httptest.NewServer(pingHandler())
	defer busy.Close()

	srv := New(pingHandler(), Options{Addr: busy.Listener.Addr().String()}, nil)
	err := srv.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestServerStopWithoutServing(t *testing.T) {
	srv := New(pingHandler(), Options{Addr: "127.0.0.1:0"}, nil)
	require.NoError(t, srv.Listen())
	require.NoError(t, srv.Listen())
	addr := srv.Addr()

	require.NoError(t, srv.Stop(context.Background()))
	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "the listener is released")
}

func TestOptionsFromConfigSetsHeaderTimeout(t *testing.T) {
	opts := OptionsFromConfig()
	assert.NotEmpty(t, opts.Addr)
	assert.Positive(t, opts.ReadHeaderTimeout)
}
