package slack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/platform/errors"
	platformtesting "github.com/devops-agent/gateway/internal/platform/testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.SlackConfig{
		BotToken:       "xoxb-test",
		DefaultChannel: "#general",
		APIBase:        srv.URL,
	}, platformtesting.SetupTestLogger(t))
}

func decodeJSONBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read request body: %v", err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

func TestSendMessageUsesDefaultChannel(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		decodeJSONBody(t, r, &body)
		w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1700000000.000100"}`))
	}))

	receipt, err := client.SendMessage(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if body["channel"] != "#general" {
		t.Errorf("channel = %v, expected default #general", body["channel"])
	}
	if !receipt.OK || receipt.Channel != "C123" || receipt.TS != "1700000000.000100" {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestSendMessageBackendError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`))
	}))

	_, err := client.SendMessage(context.Background(), "hello", "#missing")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.IsKind(err, errors.KindBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("error %q missing slack error code", err.Error())
	}
}

func TestUpdateMessageOmitsEmptyBlocks(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.update" {
			t.Errorf("path = %q", r.URL.Path)
		}
		decodeJSONBody(t, r, &body)
		w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1700000000.000100"}`))
	}))

	_, err := client.UpdateMessage(context.Background(), "C123", "1700000000.000100", "updated", nil)
	if err != nil {
		t.Fatalf("UpdateMessage error: %v", err)
	}
	if body["ts"] != "1700000000.000100" {
		t.Errorf("ts = %v", body["ts"])
	}
	if _, ok := body["blocks"]; ok {
		t.Error("empty blocks must be omitted from the update payload")
	}
}

func TestListChannels(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("types"); got != "public_channel" {
			t.Errorf("types = %q", got)
		}
		w.Write([]byte(`{"ok": true, "channels": [
			{"id": "C1", "name": "general"},
			{"id": "C2", "name": "dev"}
		]}`))
	}))

	channels, err := client.ListChannels(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListChannels error: %v", err)
	}
	if len(channels) != 2 || channels[1].Name != "dev" {
		t.Errorf("channels = %+v", channels)
	}
}

func TestCallSendsBearerToken(t *testing.T) {
	var auth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok": true, "channels": []}`))
	}))

	if _, err := client.ListChannels(context.Background(), 10); err != nil {
		t.Fatalf("ListChannels error: %v", err)
	}
	if auth != "Bearer xoxb-test" {
		t.Errorf("Authorization = %q", auth)
	}
}
