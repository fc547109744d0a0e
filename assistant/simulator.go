// Package assistant produces simulated assistant replies after a fixed
// latency, emulating a backend round trip while driving a visible typing
// state.
package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/schoolcare/server/suggest"
)

// Config holds the two fixed delays of the reply state machine:
// idle -> pending (0..TypingDelay) -> typing (..ReplyDelay) -> idle.
type Config struct {
	// TypingDelay is the time from send until the typing indicator turns on.
	TypingDelay time.Duration
	// ReplyDelay is the total time from send until the reply is delivered
	// and typing turns off. Must be >= TypingDelay.
	ReplyDelay time.Duration
}

const (
	DefaultTypingDelay = 1 * time.Second
	DefaultReplyDelay  = 2500 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.TypingDelay <= 0 {
		c.TypingDelay = DefaultTypingDelay
	}
	if c.ReplyDelay < c.TypingDelay {
		c.ReplyDelay = c.TypingDelay + (DefaultReplyDelay - DefaultTypingDelay)
	}
	return c
}

// Reply is a synthesized assistant response.
type Reply struct {
	Text        string
	Suggestions []string
}

// EngineProvider yields the current keyword engine.
// Satisfied by *suggest.FileStore.
type EngineProvider interface {
	Engine() *suggest.Engine
}

// Sink receives simulator side effects. Implementations must be safe for
// calls from the simulator goroutine.
type Sink interface {
	SetTyping(conversationID string, typing bool)
	DeliverReply(conversationID string, reply Reply)
}

// Simulator schedules simulated replies. It never fails and has no retry
// semantics; cancellation is the caller's concern via the schedule context.
type Simulator struct {
	cfg   Config
	rules EngineProvider
}

func New(rules EngineProvider, cfg Config) *Simulator {
	return &Simulator{cfg: cfg.withDefaults(), rules: rules}
}

// Compose builds the reply for a user input: the base acknowledgment,
// prefixed with the first matching rule's sentence and carrying the matched
// suggestions, if any keyword applies.
func (s *Simulator) Compose(input string) Reply {
	m := s.rules.Engine().Match(input)

	text := suggest.BaseReply
	if m.Reply != "" {
		text = m.Reply + " " + suggest.BaseReply
	}
	return Reply{Text: text, Suggestions: m.Suggestions}
}

// Schedule starts the typing/reply sequence for one user message and
// returns immediately. Cancelling ctx aborts whatever has not fired yet;
// a typing indicator already shown is turned back off.
func (s *Simulator) Schedule(ctx context.Context, conversationID, input string, sink Sink) {
	reply := s.Compose(input)

	go func() {
		typingTimer := time.NewTimer(s.cfg.TypingDelay)
		defer typingTimer.Stop()

		select {
		case <-ctx.Done():
			slog.Debug("reply cancelled before typing", "conversationId", conversationID)
			return
		case <-typingTimer.C:
		}

		sink.SetTyping(conversationID, true)

		replyTimer := time.NewTimer(s.cfg.ReplyDelay - s.cfg.TypingDelay)
		defer replyTimer.Stop()

		select {
		case <-ctx.Done():
			slog.Debug("reply cancelled while typing", "conversationId", conversationID)
			sink.SetTyping(conversationID, false)
			return
		case <-replyTimer.C:
		}

		sink.SetTyping(conversationID, false)
		sink.DeliverReply(conversationID, reply)
	}()
}
