package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/garyellow/convobot-go/internal/ctxutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_Handle(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(context.Context) context.Context
		expected map[string]string
	}{
		{
			name: "extracts all context values",
			setup: func(ctx context.Context) context.Context {
				ctx = ctxutil.WithRequestID(ctx, "req-1")
				ctx = ctxutil.WithBotID(ctx, "bot1")
				ctx = ctxutil.WithConnectorID(ctx, "c1")
				return ctxutil.WithUserID(ctx, "player-1")
			},
			expected: map[string]string{
				"request_id":   "req-1",
				"bot_id":       "bot1",
				"connector_id": "c1",
				"user_id":      "player-1",
			},
		},
		{
			name:     "handles empty context",
			setup:    func(ctx context.Context) context.Context { return ctx },
			expected: map[string]string{},
		},
		{
			name: "skips empty string values",
			setup: func(ctx context.Context) context.Context {
				ctx = ctxutil.WithUserID(ctx, "")
				return ctxutil.WithBotID(ctx, "bot1")
			},
			expected: map[string]string{"bot_id": "bot1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter("info", &buf)

			log.InfoContext(tt.setup(context.Background()), "event")

			entries := decodeLines(t, &buf)
			require.Len(t, entries, 1)
			for _, key := range []string{"request_id", "bot_id", "connector_id", "user_id"} {
				want, ok := tt.expected[key]
				if !ok {
					assert.NotContains(t, entries[0], key)
					continue
				}
				assert.Equal(t, want, entries[0][key])
			}
		})
	}
}
