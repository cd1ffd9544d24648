// Package generation owns the lifecycle of model calls: at most one
// outstanding call per user, cooperative cancellation, and appending the
// exchange to the session once a response is fully received.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ctxpkg "github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/context"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/model"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/store"
)

// DefaultTimeout bounds one model call end to end.
const DefaultTimeout = 120 * time.Second

var (
	// ErrBusy reports a prompt arriving while the user's previous call is
	// still outstanding.
	ErrBusy = errors.New("generation: already in flight for this user")
	// ErrStopped reports a call aborted by /stop or /clear before a
	// response was received.
	ErrStopped = errors.New("generation: stopped by user")
)

// inflightCall tracks one outstanding model call.
type inflightCall struct {
	id      string
	cancel  context.CancelFunc
	stopped bool
}

// Coordinator serializes generations per user and turns completed responses
// into history updates.
type Coordinator struct {
	provider  model.Provider
	store     *store.Store
	assembler *ctxpkg.Assembler
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[int64]*inflightCall
}

// New returns a coordinator calling provider with the given per-call timeout.
// timeout <= 0 falls back to DefaultTimeout.
func New(provider model.Provider, st *store.Store, assembler *ctxpkg.Assembler, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		provider:  provider,
		store:     st,
		assembler: assembler,
		timeout:   timeout,
		logger:    logger,
		inflight:  make(map[int64]*inflightCall),
	}
}

// Generate runs one prompt through the model for the user and returns the
// reply text. The user and assistant turns are appended to the session
// together, only after the response is fully received, so a failed or
// cancelled call leaves no partial exchange behind.
//
// The user's session lock is held only around the load and the final append,
// never across the model call, so commands stay responsive while a
// generation is running.
func (c *Coordinator) Generate(ctx context.Context, userID int64, prompt string) (string, error) {
	callCtx, call, err := c.register(ctx, userID)
	if err != nil {
		return "", err
	}
	defer c.release(userID, call)

	sess, err := c.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	req := c.assembler.Assemble(sess, prompt)
	c.logger.Debug("issuing chat completion",
		zap.Int64("user_id", userID),
		zap.String("request_id", call.id),
		zap.Int("messages", len(req.Messages)),
		zap.Float32("temperature", req.Temperature),
	)

	started := time.Now()
	resp, err := c.provider.ChatCompletion(callCtx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) && c.wasStopped(call) {
			c.logger.Info("generation stopped",
				zap.Int64("user_id", userID),
				zap.String("request_id", call.id),
			)
			return "", ErrStopped
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("generation timed out after %s: %w", c.timeout, err)
		}
		return "", err
	}

	// Appended with the parent context: the per-call context may already be
	// cancelled when the response arrived before /stop took effect, and a
	// fully received response is still recorded.
	err = c.store.Update(ctx, userID, func(s *session.Session) error {
		s.Append(
			session.Turn{Role: session.RoleUser, Content: prompt},
			session.Turn{Role: session.RoleAssistant, Content: resp.Content},
		)
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Info("completion stored",
		zap.Int64("user_id", userID),
		zap.String("request_id", call.id),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)
	return resp.Content, nil
}

// Cancel requests cancellation of the user's outstanding call. It reports
// whether a call was in flight. Cancellation is cooperative: a response that
// has already been received is still appended.
func (c *Coordinator) Cancel(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.inflight[userID]
	if !ok {
		return false
	}
	call.stopped = true
	call.cancel()
	return true
}

// Busy reports whether the user currently has a call in flight.
func (c *Coordinator) Busy(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[userID]
	return ok
}

func (c *Coordinator) register(ctx context.Context, userID int64) (context.Context, *inflightCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.inflight[userID]; exists {
		return nil, nil, ErrBusy
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	call := &inflightCall{id: uuid.NewString(), cancel: cancel}
	c.inflight[userID] = call
	return callCtx, call, nil
}

func (c *Coordinator) release(userID int64, call *inflightCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call.cancel()
	if cur, ok := c.inflight[userID]; ok && cur == call {
		delete(c.inflight, userID)
	}
}

func (c *Coordinator) wasStopped(call *inflightCall) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return call.stopped
}
