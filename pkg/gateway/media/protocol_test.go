package media

import "testing"

func TestDecodeFrame_Start(t *testing.T) {
	raw := `{"event":"start","sequenceNumber":"1","start":{"streamSid":"MZ1","customParameters":{"sessionId":"sess_a"},"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}}}`
	frame, derr := DecodeFrame([]byte(raw))
	if derr != nil {
		t.Fatalf("decode: %v", derr)
	}
	if frame.Event != EventStart {
		t.Fatalf("event=%q, want start", frame.Event)
	}
	if frame.ResolveStreamSid() != "MZ1" {
		t.Fatalf("streamSid=%q, want MZ1", frame.ResolveStreamSid())
	}
	if frame.Start.SessionID() != "sess_a" {
		t.Fatalf("sessionId=%q, want sess_a", frame.Start.SessionID())
	}
}

func TestDecodeFrame_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `{{`, "bad_frame"},
		{"missing event", `{"streamSid":"MZ1"}`, "bad_frame"},
		{"unknown event", `{"event":"mark"}`, "unsupported"},
		{"start without payload", `{"event":"start","streamSid":"MZ1"}`, "bad_frame"},
		{"start without streamSid", `{"event":"start","start":{}}`, "bad_frame"},
		{"media without payload", `{"event":"media","media":{"payload":""}}`, "bad_frame"},
		{"stop without streamSid", `{"event":"stop"}`, "bad_frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, derr := DecodeFrame([]byte(tt.raw))
			if derr == nil {
				t.Fatalf("decode succeeded, want %s", tt.code)
			}
			if derr.Code != tt.code {
				t.Fatalf("code=%q, want %q", derr.Code, tt.code)
			}
		})
	}
}

func TestResolveStreamSid_FallsBackToPayloads(t *testing.T) {
	f := Frame{Start: &StartPayload{StreamSid: "MZ2"}}
	if got := f.ResolveStreamSid(); got != "MZ2" {
		t.Fatalf("got=%q, want MZ2", got)
	}
	f = Frame{Stop: &StopPayload{StreamSid: "MZ3"}}
	if got := f.ResolveStreamSid(); got != "MZ3" {
		t.Fatalf("got=%q, want MZ3", got)
	}
	f = Frame{StreamSid: "MZ4", Start: &StartPayload{StreamSid: "MZ5"}}
	if got := f.ResolveStreamSid(); got != "MZ4" {
		t.Fatalf("envelope should win, got=%q", got)
	}
}
