package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultDeepgramWSURL = "wss://api.deepgram.com/v1/listen"

	keepAliveInterval = 5 * time.Second
	writeTimeout      = 5 * time.Second
)

// DeepgramDialer opens streaming transcription connections against a
// Deepgram-compatible /v1/listen endpoint.
type DeepgramDialer struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
	Dialer  *websocket.Dialer
}

func (d *DeepgramDialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *DeepgramDialer) Dial(ctx context.Context, cfg StreamConfig, cb Callbacks) (Upstream, error) {
	base := strings.TrimSpace(d.BaseURL)
	if base == "" {
		base = defaultDeepgramWSURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse stt url: %w", err)
	}

	q := u.Query()
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.Encoding != "" {
		q.Set("encoding", cfg.Encoding)
	}
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	header := http.Header{}
	if key := strings.TrimSpace(d.APIKey); key != "" {
		header.Set("Authorization", "Token "+key)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stt dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("stt dial: %w", err)
	}

	s := &deepgramStream{
		conn:   conn,
		cb:     cb,
		logger: d.logger(),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go s.keepAliveLoop()
	return s, nil
}

type deepgramStream struct {
	conn   *websocket.Conn
	cb     Callbacks
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// transcriptFrame is the subset of the provider's result message the bridge
// cares about.
type transcriptFrame struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Closed by Stop; not an upstream error.
			default:
				if s.cb.OnError != nil {
					s.cb.OnError(fmt.Errorf("stt read: %w", err))
				}
			}
			return
		}

		var frame transcriptFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if s.cb.OnError != nil {
				s.cb.OnError(fmt.Errorf("stt frame decode: %w", err))
			}
			continue
		}
		if frame.Type != "" && frame.Type != "Results" {
			// Metadata, keepalive echoes, and similar frames.
			continue
		}
		if len(frame.Channel.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(frame.Channel.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		if frame.IsFinal {
			if s.cb.OnFinal != nil {
				s.cb.OnFinal(text)
			}
		} else if s.cb.OnPartial != nil {
			s.cb.OnPartial(text)
		}
	}
}

// keepAliveLoop keeps the upstream from idling out during silence.
func (s *deepgramStream) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *deepgramStream) SendAudio(audio []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("stt stream closed")
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (s *deepgramStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}
