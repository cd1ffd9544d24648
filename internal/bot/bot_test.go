package bot

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/command"
	ctxpkg "github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/context"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/generation"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/model"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/storage"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/store"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/telegram"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentMessage
	actions int
	offsets []int64
	updates chan []telegram.Update
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{updates: make(chan []telegram.Update, 4)}
}

func (f *fakeTransport) GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()
	select {
	case u := <-f.updates:
		return u, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) SendChatAction(_ context.Context, chatID int64, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions++
	return nil
}

func (f *fakeTransport) sentCopy() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) actionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions
}

type fakeProvider struct {
	fn func(ctx context.Context, req model.Request) (model.CompletionResponse, error)
}

func (f *fakeProvider) ChatCompletion(ctx context.Context, req model.Request) (model.CompletionResponse, error) {
	return f.fn(ctx, req)
}

func testBot(t *testing.T, fn func(ctx context.Context, req model.Request) (model.CompletionResponse, error)) (*Bot, *fakeTransport, *store.Store) {
	t.Helper()
	st := store.New(storage.NewMemory(), session.DefaultSettings())
	coord := generation.New(&fakeProvider{fn: fn}, st, ctxpkg.NewAssembler(20), time.Minute, zap.NewNop())
	interp := command.NewInterpreter(st, coord)
	transport := newFakeTransport()
	return New(transport, interp, coord, 1, zap.NewNop()), transport, st
}

func textUpdate(id, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			Chat: telegram.Chat{ID: chatID},
			Text: &text,
			Date: time.Now().Unix(),
		},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPromptEndToEnd(t *testing.T) {
	ctx := context.Background()
	b, transport, st := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		return model.CompletionResponse{Content: "hi there"}, nil
	})

	b.HandleUpdate(ctx, textUpdate(1, 42, "hello"))

	sent := transport.sentCopy()
	if len(sent) != 1 || sent[0].chatID != 42 || sent[0].text != "hi there" {
		t.Fatalf("unexpected replies: %+v", sent)
	}

	sess, _ := st.Get(ctx, 42)
	if len(sess.History) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(sess.History))
	}
	if sess.History[0].Role != session.RoleUser || sess.History[0].Content != "hello" {
		t.Errorf("unexpected first turn: %+v", sess.History[0])
	}
	if sess.History[1].Role != session.RoleAssistant || sess.History[1].Content != "hi there" {
		t.Errorf("unexpected second turn: %+v", sess.History[1])
	}
}

func TestSystemFingerprintReachesRequest(t *testing.T) {
	ctx := context.Background()
	var captured model.Request
	b, transport, _ := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		captured = req
		return model.CompletionResponse{Content: "ok"}, nil
	})

	b.HandleUpdate(ctx, textUpdate(1, 42, "/system You are terse"))
	b.HandleUpdate(ctx, textUpdate(2, 42, "hello"))

	sent := transport.sentCopy()
	if len(sent) != 2 {
		t.Fatalf("expected 2 replies, got %+v", sent)
	}
	if sent[0].text != "System fingerprint set: You are terse" {
		t.Errorf("unexpected /system reply: %q", sent[0].text)
	}
	if len(captured.Messages) == 0 || captured.Messages[0].Role != model.RoleSystem || captured.Messages[0].Content != "You are terse" {
		t.Fatalf("expected system entry in request, got %+v", captured.Messages)
	}
}

func TestBusyRejectsSecondPrompt(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	proceed := make(chan struct{})
	b, transport, st := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		close(started)
		<-proceed
		return model.CompletionResponse{Content: "slow answer"}, nil
	})

	go b.HandleUpdate(ctx, textUpdate(1, 42, "first"))
	<-started

	b.HandleUpdate(ctx, textUpdate(2, 42, "second"))

	sent := transport.sentCopy()
	if len(sent) != 1 || sent[0].text != busyReply {
		t.Fatalf("expected busy reply, got %+v", sent)
	}

	close(proceed)
	waitFor(t, func() bool { return len(transport.sentCopy()) == 2 }, "first reply never arrived")

	sent = transport.sentCopy()
	if sent[1].text != "slow answer" {
		t.Errorf("unexpected final reply: %q", sent[1].text)
	}

	// The rejected prompt left no trace; the original exchange is stored once.
	sess, _ := st.Get(ctx, 42)
	if len(sess.History) != 2 {
		t.Fatalf("expected exactly 2 turns, got %d", len(sess.History))
	}
}

func TestStopCancelsGeneration(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	b, transport, st := testBot(t, func(callCtx context.Context, req model.Request) (model.CompletionResponse, error) {
		close(started)
		<-callCtx.Done()
		return model.CompletionResponse{}, callCtx.Err()
	})

	go b.HandleUpdate(ctx, textUpdate(1, 42, "long prompt"))
	<-started

	b.HandleUpdate(ctx, textUpdate(2, 42, "/stop"))
	waitFor(t, func() bool { return len(transport.sentCopy()) == 2 }, "cancel outcome never arrived")

	// The ack and the outcome come from different goroutines, so accept either order.
	var texts []string
	for _, m := range transport.sentCopy() {
		texts = append(texts, m.text)
	}
	if !slices.Contains(texts, "Stopping current generation...") {
		t.Errorf("missing /stop ack in %q", texts)
	}
	if !slices.Contains(texts, cancelledReply) {
		t.Errorf("missing cancel outcome in %q", texts)
	}

	sess, _ := st.Get(ctx, 42)
	if len(sess.History) != 0 {
		t.Fatalf("cancelled generation must not append turns, got %+v", sess.History)
	}
}

func TestStopWhenIdle(t *testing.T) {
	ctx := context.Background()
	b, transport, _ := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		return model.CompletionResponse{Content: "unused"}, nil
	})

	b.HandleUpdate(ctx, textUpdate(1, 42, "/stop"))

	sent := transport.sentCopy()
	if len(sent) != 1 || sent[0].text != "Nothing to stop." {
		t.Fatalf("unexpected reply: %+v", sent)
	}
}

func TestUnknownSlashTokenIsPrompt(t *testing.T) {
	ctx := context.Background()
	var prompt string
	b, transport, _ := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		prompt = req.Messages[len(req.Messages)-1].Content
		return model.CompletionResponse{Content: "asked the model"}, nil
	})

	b.HandleUpdate(ctx, textUpdate(1, 42, "/frobnicate the widget"))

	if prompt != "/frobnicate the widget" {
		t.Errorf("expected unknown command forwarded as prompt, got %q", prompt)
	}
	sent := transport.sentCopy()
	if len(sent) != 1 || sent[0].text != "asked the model" {
		t.Fatalf("unexpected replies: %+v", sent)
	}
}

func TestModelFailureSendsErrorReply(t *testing.T) {
	ctx := context.Background()
	b, transport, st := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		return model.CompletionResponse{}, &model.Error{Kind: model.KindNetwork, Err: errors.New("refused")}
	})

	b.HandleUpdate(ctx, textUpdate(1, 42, "hello"))

	sent := transport.sentCopy()
	if len(sent) != 1 || sent[0].text != errorReply {
		t.Fatalf("expected generic error reply, got %+v", sent)
	}
	sess, _ := st.Get(ctx, 42)
	if len(sess.History) != 0 {
		t.Fatalf("failed call must not append turns, got %+v", sess.History)
	}
}

func TestIgnoresUpdatesWithoutText(t *testing.T) {
	ctx := context.Background()
	b, transport, _ := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		t.Error("provider must not be called")
		return model.CompletionResponse{}, nil
	})

	empty := "   "
	b.HandleUpdate(ctx, telegram.Update{UpdateID: 1})
	b.HandleUpdate(ctx, telegram.Update{UpdateID: 2, Message: &telegram.Message{Chat: telegram.Chat{ID: 42}}})
	b.HandleUpdate(ctx, telegram.Update{UpdateID: 3, Message: &telegram.Message{Chat: telegram.Chat{ID: 42}, Text: &empty}})

	if sent := transport.sentCopy(); len(sent) != 0 {
		t.Fatalf("expected no replies, got %+v", sent)
	}
}

func TestTypingIndicatorDuringGeneration(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	proceed := make(chan struct{})
	b, transport, _ := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		close(started)
		<-proceed
		return model.CompletionResponse{Content: "done"}, nil
	})

	go b.HandleUpdate(ctx, textUpdate(1, 42, "think hard"))
	<-started

	waitFor(t, func() bool { return transport.actionCount() >= 1 }, "typing action never sent")
	close(proceed)
	waitFor(t, func() bool { return len(transport.sentCopy()) == 1 }, "reply never arrived")
}

func TestRunAdvancesOffsetAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, transport, _ := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		return model.CompletionResponse{Content: "pong"}, nil
	})

	transport.updates <- []telegram.Update{textUpdate(7, 42, "ping")}

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, func() bool { return len(transport.sentCopy()) == 1 }, "reply never sent")
	waitFor(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.offsets) >= 2
	}, "second poll never issued")

	transport.mu.Lock()
	first, second := transport.offsets[0], transport.offsets[1]
	transport.mu.Unlock()
	if first != 0 {
		t.Errorf("expected initial offset 0, got %d", first)
	}
	if second != 8 {
		t.Errorf("expected offset advanced to update_id+1 = 8, got %d", second)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	ctx := context.Background()
	b, transport, _ := testBot(t, func(_ context.Context, req model.Request) (model.CompletionResponse, error) {
		panic("provider exploded")
	})

	b.Dispatch(ctx, textUpdate(1, 42, "boom"))
	b.Wait()

	sent := transport.sentCopy()
	if len(sent) != 1 || sent[0].text != errorReply {
		t.Fatalf("expected error reply after panic, got %+v", sent)
	}
}
