// Package bot runs the message-handling cycle: inbound update → command or
// prompt → session mutation or generation → reply. Each update is handled in
// its own goroutine so one user's slow generation never blocks another user.
package bot

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/command"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/generation"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/telegram"
)

const (
	busyReply      = "⏳ Please wait, I'm still processing your previous request..."
	cancelledReply = "Generation cancelled."
	errorReply     = "❌ Could not process your request. Please try again."

	pollRetryDelay = 3 * time.Second
	typingInterval = 4 * time.Second
)

// Transport delivers updates and sends replies. *telegram.Client satisfies it.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// Generator runs one prompt through the model. *generation.Coordinator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, userID int64, prompt string) (string, error)
}

// Bot wires the transport to the command interpreter and the generation
// coordinator.
type Bot struct {
	transport   Transport
	interp      *command.Interpreter
	generator   Generator
	pollTimeout int
	logger      *zap.Logger

	wg sync.WaitGroup
}

// New builds a bot. pollTimeout is the long-poll timeout in seconds.
func New(transport Transport, interp *command.Interpreter, generator Generator, pollTimeout int, logger *zap.Logger) *Bot {
	return &Bot{
		transport:   transport,
		interp:      interp,
		generator:   generator,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Run long-polls for updates until ctx is cancelled, dispatching each one.
// Transient poll errors are logged and retried after a short sleep. Returns
// nil on clean shutdown, after in-flight handlers have drained.
func (b *Bot) Run(ctx context.Context) error {
	defer b.wg.Wait()

	var offset int64
	for {
		updates, err := b.transport.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.Dispatch(ctx, update)
		}
	}
}

// Dispatch handles one update in its own goroutine. A panicking handler is
// recovered and answered with the generic error reply, so one poisoned
// update cannot take the process down. Used by both the poll loop and the
// webhook receiver.
func (b *Bot) Dispatch(ctx context.Context, update telegram.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("update handler panicked",
					zap.Int64("update_id", update.UpdateID),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				if update.Message != nil {
					b.send(ctx, update.Message.Chat.ID, errorReply)
				}
			}
		}()
		b.HandleUpdate(ctx, update)
	}()
}

// Wait blocks until all dispatched handlers have finished. Run calls it on
// exit; the webhook path calls it after the server shuts down.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleUpdate processes one update synchronously: parse, apply, reply.
// Updates without usable text are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update telegram.Update) {
	if update.Message == nil || update.Message.Text == nil {
		return
	}
	text := *update.Message.Text
	if strings.TrimSpace(text) == "" {
		return
	}
	userID := update.Message.Chat.ID

	cmd := command.Parse(text)
	if cmd.Kind == command.KindPrompt {
		b.handlePrompt(ctx, userID, cmd.Arg)
		return
	}

	reply, err := b.interp.Execute(ctx, userID, cmd)
	if err != nil {
		b.logger.Error("command failed",
			zap.Int64("chat_id", userID),
			zap.Int("kind", int(cmd.Kind)),
			zap.Error(err),
		)
		b.send(ctx, userID, errorReply)
		return
	}
	b.send(ctx, userID, reply)
}

func (b *Bot) handlePrompt(ctx context.Context, userID int64, prompt string) {
	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go b.typeLoop(typingCtx, userID)

	reply, err := b.generator.Generate(ctx, userID, prompt)
	stopTyping()

	switch {
	case err == nil:
		b.send(ctx, userID, reply)
	case errors.Is(err, generation.ErrBusy):
		b.send(ctx, userID, busyReply)
	case errors.Is(err, generation.ErrStopped):
		b.send(ctx, userID, cancelledReply)
	case ctx.Err() != nil:
		// Shutdown took the call down with it; nothing useful to send.
		b.logger.Warn("generation abandoned at shutdown", zap.Int64("chat_id", userID))
	default:
		b.logger.Error("generation failed",
			zap.Int64("chat_id", userID),
			zap.Error(err),
		)
		b.send(ctx, userID, errorReply)
	}
}

// typeLoop keeps the typing indicator alive while a generation runs. The
// indicator expires after about five seconds, so it is refreshed on a ticker.
func (b *Bot) typeLoop(ctx context.Context, chatID int64) {
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	for {
		if err := b.transport.SendChatAction(ctx, chatID, "typing"); err != nil && ctx.Err() == nil {
			b.logger.Debug("sendChatAction failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.transport.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn("sendMessage failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
