package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
	"github.com/brokerfed/cluster/pkg/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCfg(t *testing.T, urls []string) *config.PluginConfig {
	cfg := config.DefaultPluginConfig()
	cfg.WorkerThreads = 2
	cfg.AsyncQueueCapacity = 4
	cfg.HTTPTimeout = 5 * time.Second
	cfg.HTTPURLs = urls
	cfg.Rules = config.RuleSet{
		hook.ClientConnected: {
			{Action: "connected", URLs: urls},
		},
	}
	return &cfg
}

func connectedEvent(id broker.ClientID) *hook.ConnectEvent {
	return &hook.ConnectEvent{
		Base: hook.Base{Type: hook.ClientConnected, Client: &broker.Client{ID: id, Node: 1}},
	}
}

func TestDispatcher_DeliversMatchedRuleToServer(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "connected", body["action"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(testCfg(t, []string{srv.URL}))
	require.NoError(t, d.Start(context.Background()))
	d.Submit(connectedEvent("c1"))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&received) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_TwoURLsProduceTwoRequests(t *testing.T) {
	var count int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusOK)
	})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	cfg := testCfg(t, nil)
	cfg.Rules = config.RuleSet{
		hook.ClientConnected: {{Action: "connected", URLs: []string{srv1.URL, srv2.URL}}},
	}
	d := NewDispatcher(cfg)
	require.NoError(t, d.Start(context.Background()))
	d.Submit(connectedEvent("c1"))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&count) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_QueueOverflowDropsExcessWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testCfg(t, []string{srv.URL})
	cfg.WorkerThreads = 1
	cfg.AsyncQueueCapacity = 2
	d := NewDispatcher(cfg)
	require.NoError(t, d.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Submit(connectedEvent(broker.ClientID("c")))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked instead of dropping on a full queue")
	}

	close(block)
	stats := d.Stats()
	assert.Greater(t, stats.Dropped, int64(0))
}

func TestDispatcher_LoadConfigSwapsGenerationAndDrainsOld(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(testCfg(t, []string{srv.URL}))
	require.NoError(t, d.Start(context.Background()))
	oldGen := d.gen

	newCfg := testCfg(t, []string{srv.URL})
	newCfg.WorkerThreads = 3
	newCfg.AsyncQueueCapacity = 8
	d.LoadConfig(newCfg)

	assert.NotSame(t, oldGen, d.gen)

	drained := make(chan struct{})
	go func() {
		oldGen.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("old generation's workers did not exit after LoadConfig")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Submit(connectedEvent("after-reload"))
	}()
	wg.Wait()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&count) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_SendNonSuccessStatusErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	d := NewDispatcher(testCfg(t, []string{srv.URL}))
	err := d.send(context.Background(), target{url: srv.URL, body: map[string]any{"x": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "500")
}

func TestLogDeliveryFailure_TransportErrorLogsAtError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	logDeliveryFailure(log, "d1", "http://example.invalid", errors.New("dial tcp: connection refused"))

	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestLogDeliveryFailure_HTTPStatusErrorLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	logDeliveryFailure(log, "d1", "http://example.invalid", &httpStatusError{url: "http://example.invalid", status: 500, body: "boom"})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.NotContains(t, out, "level=ERROR")
}

func TestMatchRules_SkipsRuleWithNoURLsAndNoFallback(t *testing.T) {
	rules := []config.Rule{{Action: "a"}}
	targets := matchRules(rules, nil, "x/y", true, map[string]any{"k": "v"})
	assert.Empty(t, targets)
}

func TestMatchRules_TopicFilterGatesMatch(t *testing.T) {
	rules := []config.Rule{{Action: "a", Topics: []broker.TopicFilter{"sensors/+"}, URLs: []string{"http://example.invalid"}}}

	matched := matchRules(rules, nil, "sensors/1", true, map[string]any{})
	require.Len(t, matched, 1)

	unmatched := matchRules(rules, nil, "other/1", true, map[string]any{})
	assert.Empty(t, unmatched)
}
