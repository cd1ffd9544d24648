package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testToken = "test-token"

func testClient(srvURL string) *Client {
	return NewClient(srvURL, testToken, 2*time.Second)
}

func apiPath(method string) string {
	return "/bot" + testToken + "/" + method
}

func TestGetUpdates_MapsMessages(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPath("getUpdates") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"ok":true,"result":[`+
			`{"update_id":11,"message":{"chat":{"id":123},"text":"hello","date":1700000000}},`+
			`{"update_id":12,"message":{"chat":{"id":456},"text":"/clear","date":1700000001}}`+
			`]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	updates, err := c.GetUpdates(context.Background(), 7, 30)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].UpdateID != 11 || updates[0].Message == nil || *updates[0].Message.Text != "hello" {
		t.Fatalf("unexpected first update: %#v", updates[0])
	}
	if updates[0].Message.Chat.ID != 123 {
		t.Fatalf("unexpected chat id: %d", updates[0].Message.Chat.ID)
	}
	if !strings.Contains(gotQuery, "offset=7") || !strings.Contains(gotQuery, "timeout=30") {
		t.Fatalf("expected offset and timeout params, got %q", gotQuery)
	}
}

func TestGetUpdates_APIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.GetUpdates(context.Background(), 0, 0)
	if err == nil {
		t.Fatal("expected error for ok:false response")
	}
	if !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("expected description surfaced, got %v", err)
	}
}

func TestSendMessage_Payload(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPath("sendMessage") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.SendMessage(context.Background(), 123, `reply with "quotes"`); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	var payload struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal([]byte(gotBody), &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v (%s)", err, gotBody)
	}
	if payload.ChatID != 123 {
		t.Errorf("expected chat_id 123, got %d", payload.ChatID)
	}
	if payload.Text != `reply with "quotes"` {
		t.Errorf("unexpected text: %q", payload.Text)
	}
}

func TestSendMessage_ChunksLongText(t *testing.T) {
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Text string `json:"text"`
		}
		json.Unmarshal(body, &payload)
		texts = append(texts, payload.Text)
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	long := strings.Repeat("я", MaxMessageRunes+500)
	c := testClient(srv.URL)
	if err := c.SendMessage(context.Background(), 1, long); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if len(texts) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(texts))
	}
	if got := len([]rune(texts[0])); got != MaxMessageRunes {
		t.Errorf("expected first chunk of %d runes, got %d", MaxMessageRunes, got)
	}
	if got := len([]rune(texts[1])); got != 500 {
		t.Errorf("expected second chunk of 500 runes, got %d", got)
	}
	if texts[0]+texts[1] != long {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSendMessage_EmptyIsNoop(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.SendMessage(context.Background(), 1, ""); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("expected no API call for empty text, got %d", calls)
	}
}

func TestSendChatAction(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPath("sendChatAction") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.SendChatAction(context.Background(), 55, "typing"); err != nil {
		t.Fatalf("SendChatAction failed: %v", err)
	}
	if !strings.Contains(gotBody, `"chat_id":55`) || !strings.Contains(gotBody, `"typing"`) {
		t.Fatalf("unexpected payload: %s", gotBody)
	}
}

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPath("getMe") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"Llama","username":"llama_ai_bot"}}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	me, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe failed: %v", err)
	}
	if me.ID != 99 || !me.IsBot || me.Username != "llama_ai_bot" {
		t.Fatalf("unexpected identity: %+v", me)
	}
}

func TestSplitChunks_RuneBoundaries(t *testing.T) {
	chunks := splitChunks("héllo", 2)
	want := []string{"hé", "ll", "o"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
	}
}

func TestSplitChunks_ExactFit(t *testing.T) {
	chunks := splitChunks("abcd", 4)
	if len(chunks) != 1 || chunks[0] != "abcd" {
		t.Fatalf("expected one whole chunk, got %q", chunks)
	}
}
