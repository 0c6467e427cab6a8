package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/storage"
)

// SessionStore is the slice of storage the chat capability needs.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (model.Session, error)
}

// ChatCapability renders stored chat transcripts. Target is a session ID;
// probe is the maximum number of trailing messages to include (default 20,
// cap 200).
type ChatCapability struct {
	sessions SessionStore
}

// NewChatCapability builds the chat:// capability.
func NewChatCapability(sessions SessionStore) *ChatCapability {
	return &ChatCapability{sessions: sessions}
}

func (c *ChatCapability) Scheme() string { return "chat" }

func (c *ChatCapability) Resolve(ctx context.Context, target, probe string) (string, error) {
	id := strings.TrimSpace(target)
	if id == "" {
		return "", Errf(model.ErrCodeInvalidURL, "chat resolver needs a session id")
	}

	max := model.DefaultChatMessages
	if p := strings.TrimSpace(probe); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			max = n
		}
	}
	if max > model.MaxSessionMessages {
		max = model.MaxSessionMessages
	}

	s, err := c.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", Errf(model.ErrCodeInvalidURL, "unknown session %q", id)
		}
		return "", fmt.Errorf("resolve: load session %q: %w", id, err)
	}
	return Transcript(s, max), nil
}

// Transcript renders the last max messages of a session as one line per
// turn, "[Role]: content". Unknown roles pass through verbatim.
func Transcript(s model.Session, max int) string {
	msgs := s.Messages
	if max > model.MaxSessionMessages {
		max = model.MaxSessionMessages
	}
	if len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	var b strings.Builder
	for _, m := range msgs {
		role := m.Role
		switch role {
		case "user":
			role = "[User]"
		case "assistant":
			role = "[Assistant]"
		case "system":
			role = "[System]"
		case "tool":
			role = "[Tool]"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
