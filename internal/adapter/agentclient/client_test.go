package agentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

func TestSendMessageParsesSSE(t *testing.T) {
	var gotHeaders http.Header
	var gotReq domain.GatewayRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flows/support" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: delta\ndata: {\"text\":\"Hel\"}\n\n")
		fmt.Fprint(w, "event: delta\ndata: {\"text\":\"lo\"}\n\n")
		fmt.Fprint(w, "event: done\ndata: {\"execution_id\":\"exec-9\"}\n\n")
	}))
	defer server.Close()

	client := &Client{httpClient: server.Client()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	flow := domain.FlowConfig{
		Endpoint: server.URL + "/flows/support",
		FlowID:   "support",
		Headers:  map[string]string{"Authorization": "Bearer agent-key"},
	}
	resp, err := client.SendMessage(ctx, flow, "hello", "sess-1", "user-1")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotReq.SessionID != "sess-1" || gotReq.Message != "hello" || gotReq.FlowID != "support" {
		t.Fatalf("unexpected request payload: %+v", gotReq)
	}
	if gotHeaders.Get("X-Session-ID") != "sess-1" {
		t.Fatalf("missing X-Session-ID header")
	}
	if gotHeaders.Get("X-User-ID") != "user-1" {
		t.Fatalf("missing X-User-ID header")
	}
	if gotHeaders.Get("Authorization") != "Bearer agent-key" {
		t.Fatalf("flow headers not forwarded")
	}
	if resp.Answer != "Hello" || resp.ExecutionID != "exec-9" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSendMessageParsesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `{"answer":"Your flight is rebooked.","execution_id":"exec-1"}`)
	}))
	defer server.Close()

	client := NewClient(time.Second)
	resp, err := client.SendMessage(context.Background(), domain.FlowConfig{Endpoint: server.URL}, "hi", "sess-1", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if resp.Answer != "Your flight is rebooked." || resp.ExecutionID != "exec-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream exploded", http.StatusBadGateway)
			},
			want: "status 502: upstream exploded",
		},
		{
			name: "error event",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "event: error\ndata: {\"code\":\"rate_limited\",\"message\":\"slow down\"}\n\n")
			},
			want: "agent error rate_limited: slow down",
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, "{")
			},
			want: "failed to decode agent response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(time.Second).SendMessage(context.Background(), domain.FlowConfig{Endpoint: server.URL}, "hi", "s", "u")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSendMessageRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(time.Second).SendMessage(context.Background(), domain.FlowConfig{}, "hi", "s", "u"); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}

func TestParseSSEMultilineData(t *testing.T) {
	input := "event: delta\n" +
		"data: first line\n" +
		"data: second line\n\n"

	var events []SSEEvent
	client := &Client{}
	if err := client.parseSSE(strings.NewReader(input), func(event SSEEvent) error {
		events = append(events, event)
		return nil
	}); err != nil {
		t.Fatalf("parseSSE failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Data != "first line\nsecond line" {
		t.Fatalf("unexpected data: %q", events[0].Data)
	}
}

func TestReadStreamWithoutDone(t *testing.T) {
	client := &Client{}
	resp, err := client.readStream(strings.NewReader("event: delta\ndata: {\"text\":\"partial\"}\n"))
	if err != nil {
		t.Fatalf("readStream failed: %v", err)
	}
	if resp.Answer != "partial" {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
}

func TestParseEventErrors(t *testing.T) {
	if _, err := ParseDeltaEvent("nope"); err == nil {
		t.Fatalf("expected error for invalid delta")
	}
	if _, err := ParseDoneEvent("nope"); err == nil {
		t.Fatalf("expected error for invalid done")
	}
	if _, err := ParseErrorEvent("nope"); err == nil {
		t.Fatalf("expected error for invalid error")
	}
}
