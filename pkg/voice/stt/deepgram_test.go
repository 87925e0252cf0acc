package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeDeepgram accepts one /v1/listen connection, records what it saw, and
// replays canned result frames.
type fakeDeepgram struct {
	mu       sync.Mutex
	query    map[string]string
	auth     string
	binary   [][]byte
	results  []string
	upgraded chan struct{}
}

func newFakeDeepgram(results ...string) *fakeDeepgram {
	return &fakeDeepgram{results: results, upgraded: make(chan struct{})}
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.query = make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			f.query[k] = vs[0]
		}
	}
	f.mu.Unlock()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	close(f.upgraded)

	for _, res := range f.results {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(res))
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType == websocket.BinaryMessage {
			f.mu.Lock()
			f.binary = append(f.binary, data)
			f.mu.Unlock()
		}
	}
}

func (f *fakeDeepgram) binaryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.binary)
}

func dialFake(t *testing.T, f *fakeDeepgram, cfg StreamConfig, cb Callbacks) Upstream {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	d := &DeepgramDialer{
		APIKey:  "dg-test-key",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
	up, err := d.Dial(context.Background(), cfg, cb)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = up.Close() })

	select {
	case <-f.upgraded:
	case <-time.After(2 * time.Second):
		t.Fatalf("upstream never upgraded")
	}
	return up
}

func collectTranscripts(partials, finals *[]string, mu *sync.Mutex) Callbacks {
	return Callbacks{
		OnPartial: func(text string) {
			mu.Lock()
			*partials = append(*partials, text)
			mu.Unlock()
		},
		OnFinal: func(text string) {
			mu.Lock()
			*finals = append(*finals, text)
			mu.Unlock()
		},
	}
}

func TestDeepgramDialer_RequestShape(t *testing.T) {
	f := newFakeDeepgram()
	dialFake(t, f, StreamConfig{
		Model:      "nova-2",
		Language:   "es",
		Encoding:   "mulaw",
		SampleRate: 8000,
		Channels:   1,
	}, Callbacks{})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auth != "Token dg-test-key" {
		t.Fatalf("auth=%q, want token header", f.auth)
	}
	want := map[string]string{
		"model":           "nova-2",
		"language":        "es",
		"encoding":        "mulaw",
		"sample_rate":     "8000",
		"channels":        "1",
		"interim_results": "true",
		"punctuate":       "true",
	}
	for k, v := range want {
		if f.query[k] != v {
			t.Fatalf("query[%s]=%q, want %q", k, f.query[k], v)
		}
	}
}

func TestDeepgramStream_DispatchesPartialsAndFinals(t *testing.T) {
	f := newFakeDeepgram(
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"está muy"}]}}`,
		`{"type":"Metadata","request_id":"x"}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"está muy caro"}]}}`,
	)

	var mu sync.Mutex
	var partials, finals []string
	dialFake(t, f, StreamConfig{}, collectTranscripts(&partials, &finals, &mu))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(partials) == 1 && len(finals) == 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(partials) != 1 || partials[0] != "está muy" {
		t.Fatalf("partials=%v, want [está muy]", partials)
	}
	if len(finals) != 1 || finals[0] != "está muy caro" {
		t.Fatalf("finals=%v, want [está muy caro]", finals)
	}
}

func TestDeepgramStream_SendAudioForwardsBinary(t *testing.T) {
	f := newFakeDeepgram()
	up := dialFake(t, f, StreamConfig{}, Callbacks{})

	if err := up.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && f.binaryCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if f.binaryCount() != 1 {
		t.Fatalf("binary frames=%d, want 1", f.binaryCount())
	}
}

func TestDeepgramStream_CloseIsQuietAndFinal(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	f := newFakeDeepgram()
	up := dialFake(t, f, StreamConfig{}, Callbacks{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})

	if err := up.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := up.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := up.SendAudio([]byte{1}); err == nil {
		t.Fatalf("SendAudio after close succeeded, want error")
	}

	// A close initiated by us must not surface as an upstream error.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 0 {
		t.Fatalf("errors after close: %v", errs)
	}
}
