// Package settings provides server-side behavior settings management.
package settings

import (
	"fmt"
	"time"
)

// Settings tune the simulated assistant and chat session behavior.
type Settings struct {
	// TypingDelayMs is how long after a user message the typing
	// indicator turns on.
	TypingDelayMs int `json:"typing_delay_ms"`
	// ReplyDelayMs is how long after a user message the assistant
	// reply is delivered.
	ReplyDelayMs int `json:"reply_delay_ms"`
	// ProtectManualTitle keeps user-chosen titles safe from
	// first-message title inference.
	ProtectManualTitle bool `json:"protect_manual_title"`
	// CancelPendingOnDelete aborts scheduled replies when their
	// conversation is deleted.
	CancelPendingOnDelete bool `json:"cancel_pending_on_delete"`
}

func Default() Settings {
	return Settings{
		TypingDelayMs:         1000,
		ReplyDelayMs:          2500,
		ProtectManualTitle:    true,
		CancelPendingOnDelete: true,
	}
}

const maxDelayMs = 60_000

func (s Settings) Validate() error {
	if s.TypingDelayMs <= 0 || s.TypingDelayMs > maxDelayMs {
		return fmt.Errorf("typing_delay_ms must be in (0, %d], got %d", maxDelayMs, s.TypingDelayMs)
	}
	if s.ReplyDelayMs <= 0 || s.ReplyDelayMs > maxDelayMs {
		return fmt.Errorf("reply_delay_ms must be in (0, %d], got %d", maxDelayMs, s.ReplyDelayMs)
	}
	if s.ReplyDelayMs < s.TypingDelayMs {
		return fmt.Errorf("reply_delay_ms (%d) must not be shorter than typing_delay_ms (%d)", s.ReplyDelayMs, s.TypingDelayMs)
	}
	return nil
}

func (s Settings) TypingDelay() time.Duration {
	return time.Duration(s.TypingDelayMs) * time.Millisecond
}

func (s Settings) ReplyDelay() time.Duration {
	return time.Duration(s.ReplyDelayMs) * time.Millisecond
}
