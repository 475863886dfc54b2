package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaivyy/kabot-sub001/llm"
)

type stubChat struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (s *stubChat) Chat(_ context.Context, messages []llm.ChatMessage, _ llm.ChatOptions) (string, error) {
	s.calls++
	if len(messages) > 0 {
		s.prompt = messages[len(messages)-1].Content
	}
	return s.reply, s.err
}

func TestParseExtractedFacts(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  int
	}{
		{
			name:  "bare array",
			reply: `[{"content": "likes tea", "category": "preference", "confidence": 0.8}]`,
			want:  1,
		},
		{
			name: "array wrapped in prose",
			reply: "Sure! Here are the facts I found:\n" +
				`[{"content": "works at a bakery", "category": "factual", "confidence": 0.9},` +
				`{"content": "runs every morning", "category": "habit", "confidence": 0.7}]` +
				"\nLet me know if you need more.",
			want: 2,
		},
		{
			name:  "empty content filtered",
			reply: `[{"content": "  ", "category": "factual", "confidence": 0.9}, {"content": "real", "category": "entity", "confidence": 0.5}]`,
			want:  1,
		},
		{
			name:  "no array",
			reply: "I could not find any facts.",
			want:  0,
		},
		{
			name:  "malformed json",
			reply: `[{"content": "broken"`,
			want:  0,
		},
		{
			name:  "empty array",
			reply: "[]",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := ParseExtractedFacts(tt.reply)
			assert.Len(t, facts, tt.want)
		})
	}
}

func TestExtractAndStore(t *testing.T) {
	m := setupManager(t, &stubEmbedder{offline: true})
	ctx := context.Background()

	_, err := m.AddMessage(ctx, AddMessageParams{
		SessionID: "s1", Role: RoleUser, Content: "I always drink tea in the morning",
	})
	require.NoError(t, err)

	chat := &stubChat{reply: `[
		{"content": "drinks tea every morning", "category": "habit", "confidence": 0.85},
		{"content": "prefers tea over coffee", "category": "bogus-category", "confidence": 1.7}
	]`}
	e := NewEpisodicExtractor(m, chat, nil)

	stored := e.ExtractAndStore(ctx, "s1")
	assert.Equal(t, 2, stored)
	assert.Equal(t, 1, chat.calls)

	facts, err := m.Store().GetFacts(ctx, "s1", "")
	require.NoError(t, err)
	require.Len(t, facts, 2)

	byValue := map[string]Fact{}
	for _, f := range facts {
		byValue[f.Value] = f
	}
	assert.Equal(t, CategoryHabit, byValue["drinks tea every morning"].Category)
	// Unknown category downgrades to factual, confidence clamps to [0, 1].
	assert.Equal(t, CategoryFactual, byValue["prefers tea over coffee"].Category)
	assert.Equal(t, 1.0, byValue["prefers tea over coffee"].Confidence)
}

func TestExtractChatErrorYieldsNothing(t *testing.T) {
	m := setupManager(t, &stubEmbedder{offline: true})
	ctx := context.Background()

	_, err := m.AddMessage(ctx, AddMessageParams{
		SessionID: "s1", Role: RoleUser, Content: "hello there",
	})
	require.NoError(t, err)

	e := NewEpisodicExtractor(m, &stubChat{err: errors.New("upstream down")}, nil)
	assert.Empty(t, e.Extract(ctx, "s1"))
	assert.Zero(t, e.ExtractAndStore(ctx, "s1"))
}

func TestExtractWindowIgnoresToolTurns(t *testing.T) {
	m := setupManager(t, &stubEmbedder{offline: true})
	ctx := context.Background()

	// Interleave tool turns with the dialogue; the 20-turn extraction window
	// must still hold 20 user/assistant messages.
	for i := 0; i < 25; i++ {
		_, err := m.AddMessage(ctx, AddMessageParams{
			SessionID: "s1", Role: RoleUser, Content: fmt.Sprintf("dialogue turn %d", i),
		})
		require.NoError(t, err)
		_, err = m.AddMessage(ctx, AddMessageParams{
			SessionID: "s1", Role: RoleTool, Content: fmt.Sprintf("tool output %d", i),
		})
		require.NoError(t, err)
	}

	chat := &stubChat{reply: "[]"}
	e := NewEpisodicExtractor(m, chat, nil)
	e.Extract(ctx, "s1")

	require.Equal(t, 1, chat.calls)
	assert.Equal(t, 20, strings.Count(chat.prompt, "user:"))
	assert.NotContains(t, chat.prompt, "tool output")
	// The window holds the most recent dialogue turns.
	assert.Contains(t, chat.prompt, "dialogue turn 24")
	assert.NotContains(t, chat.prompt, "dialogue turn 4\n")
}

func TestExtractSkipsEmptyDialogue(t *testing.T) {
	m := setupManager(t, &stubEmbedder{offline: true})
	chat := &stubChat{reply: "[]"}
	e := NewEpisodicExtractor(m, chat, nil)

	// No messages at all: the chat provider must not even be called.
	assert.Empty(t, e.Extract(context.Background(), "empty-session"))
	assert.Zero(t, chat.calls)
}
