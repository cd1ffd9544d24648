// Package command parses inbound text into a tagged command or prompt and
// applies command state transitions to the user's session.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/store"
)

// Kind tags the parse result. Anything that is not a recognized command is a
// prompt, including unknown /tokens.
type Kind int

const (
	KindPrompt Kind = iota
	KindStart
	KindHelp
	KindClear
	KindSystem
	KindTemperature
	KindStop
)

// Command is the parse result: the tag plus the argument text. For prompts,
// Arg holds the entire message.
type Command struct {
	Kind Kind
	Arg  string
}

const (
	welcomeReply = "Welcome to Llama AI Telegram Bot!"
	helpReply    = "Available commands:\n" +
		"/start - show the welcome message\n" +
		"/help - show this help\n" +
		"/clear - reset conversation history and settings\n" +
		"/system <text> - set the system fingerprint\n" +
		"/temperature <value> - set sampling temperature (0.0-1.0)\n" +
		"/stop - cancel the generation in progress"
	clearedReply          = "Conversation cleared"
	emptySystemReply      = "System fingerprint cannot be empty."
	badTemperatureReply   = "Temperature must be a number, e.g. /temperature 0.7"
	rangeTemperatureReply = "Temperature must be between 0.0 and 1.0"
	stoppingReply         = "Stopping current generation..."
	nothingToStopReply    = "Nothing to stop."
)

// Parse classifies one message. A leading known command token selects the
// command and the remainder becomes the argument; a "@botname" suffix on the
// token is ignored so group-chat forms like /clear@mybot still match.
func Parse(text string) Command {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: KindPrompt, Arg: text}
	}

	token := trimmed
	rest := ""
	if i := strings.IndexAny(trimmed, " \t\n"); i >= 0 {
		token, rest = trimmed[:i], strings.TrimSpace(trimmed[i:])
	}
	if i := strings.Index(token, "@"); i >= 0 {
		token = token[:i]
	}

	switch token {
	case "/start":
		return Command{Kind: KindStart}
	case "/help":
		return Command{Kind: KindHelp}
	case "/clear":
		return Command{Kind: KindClear}
	case "/system":
		return Command{Kind: KindSystem, Arg: rest}
	case "/temperature":
		return Command{Kind: KindTemperature, Arg: rest}
	case "/stop":
		return Command{Kind: KindStop}
	default:
		return Command{Kind: KindPrompt, Arg: text}
	}
}

// Canceller requests cancellation of a user's in-flight generation and
// reports whether one was outstanding.
type Canceller interface {
	Cancel(userID int64) bool
}

// Interpreter applies commands to sessions. Validation failures never come
// back as errors: they are replies. Errors are storage failures only.
type Interpreter struct {
	store     *store.Store
	canceller Canceller
}

// NewInterpreter returns an interpreter mutating sessions through st and
// signalling cancellations through c.
func NewInterpreter(st *store.Store, c Canceller) *Interpreter {
	return &Interpreter{store: st, canceller: c}
}

// Execute applies one command and returns the reply text. cmd must not be a
// prompt; prompts are routed to the generation coordinator by the caller.
func (i *Interpreter) Execute(ctx context.Context, userID int64, cmd Command) (string, error) {
	switch cmd.Kind {
	case KindStart:
		return welcomeReply, nil

	case KindHelp:
		return helpReply, nil

	case KindClear:
		// Cancel first so a call still waiting on the model unwinds
		// without appending to the fresh session.
		i.canceller.Cancel(userID)
		if err := i.store.Reset(ctx, userID); err != nil {
			return "", err
		}
		return clearedReply, nil

	case KindSystem:
		fingerprint := strings.TrimSpace(cmd.Arg)
		if fingerprint == "" {
			return emptySystemReply, nil
		}
		err := i.store.Update(ctx, userID, func(s *session.Session) error {
			s.Settings.SystemFingerprint = fingerprint
			return nil
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("System fingerprint set: %s", fingerprint), nil

	case KindTemperature:
		arg := strings.TrimSpace(cmd.Arg)
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return badTemperatureReply, nil
		}
		err = i.store.Update(ctx, userID, func(s *session.Session) error {
			return s.Settings.SetTemperature(float32(v))
		})
		if errors.Is(err, session.ErrTemperatureOutOfRange) {
			return rangeTemperatureReply, nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Temperature set to %v", float32(v)), nil

	case KindStop:
		if i.canceller.Cancel(userID) {
			return stoppingReply, nil
		}
		return nothingToStopReply, nil

	default:
		return "", fmt.Errorf("not a command: kind %d", cmd.Kind)
	}
}
