package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kaivyy/kabot-sub001/llm"
)

const (
	// extractorWindow is how many recent user/assistant turns feed one
	// extraction pass; extractorSnippet caps each turn's contribution.
	extractorWindow  = 20
	extractorSnippet = 300
)

const extractionPrompt = `You extract long-term memory facts from a conversation.

Given the dialogue below, list durable facts worth remembering about the user
or the world: preferences, habits, personal details, entities, commitments.
Skip small talk and anything transient.

Respond with a JSON array only, one object per fact:
[{"content": "...", "category": "preference|factual|habit|entity", "confidence": 0.0-1.0}]

Dialogue:
%s`

// ExtractedFact is one fact parsed from the extraction response.
type ExtractedFact struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// EpisodicExtractor derives long-term facts from recent dialogue via an LLM.
// Every failure path yields an empty list, never an error: extraction is an
// opportunistic background job.
type EpisodicExtractor struct {
	manager *Manager
	chat    llm.ChatProvider
	logger  *zap.Logger
}

// NewEpisodicExtractor creates an extractor over the manager's store.
func NewEpisodicExtractor(manager *Manager, chat llm.ChatProvider, logger *zap.Logger) *EpisodicExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EpisodicExtractor{
		manager: manager,
		chat:    chat,
		logger:  logger.With(zap.String("component", "episodic_extractor")),
	}
}

// Extract runs one extraction pass over a session's recent dialogue.
func (e *EpisodicExtractor) Extract(ctx context.Context, sessionID string) []ExtractedFact {
	msgs, err := e.manager.Store().GetRecentDialogue(ctx, sessionID, extractorWindow)
	if err != nil {
		e.logger.Warn("loading dialogue failed", zap.Error(err))
		return nil
	}

	var dialogue strings.Builder
	for _, msg := range msgs {
		content := msg.Content
		if len(content) > extractorSnippet {
			content = content[:extractorSnippet]
		}
		fmt.Fprintf(&dialogue, "%s: %s\n", msg.Role, content)
	}
	if dialogue.Len() == 0 {
		return nil
	}

	reply, err := e.chat.Chat(ctx, []llm.ChatMessage{
		{Role: "user", Content: fmt.Sprintf(extractionPrompt, dialogue.String())},
	}, llm.ChatOptions{})
	if err != nil {
		e.logger.Warn("extraction chat failed", zap.Error(err))
		return nil
	}

	facts := ParseExtractedFacts(reply)
	e.logger.Debug("facts extracted",
		zap.String("session_id", sessionID),
		zap.Int("count", len(facts)))
	return facts
}

// ExtractAndStore runs Extract and persists the results, returning how many
// facts were stored.
func (e *EpisodicExtractor) ExtractAndStore(ctx context.Context, sessionID string) int {
	stored := 0
	for _, f := range e.Extract(ctx, sessionID) {
		category := FactCategory(f.Category)
		if !ValidCategory(category) {
			category = CategoryFactual
		}
		confidence := f.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		_, err := e.manager.RememberFact(ctx, RememberFactParams{
			SessionID:  sessionID,
			Category:   category,
			Value:      f.Content,
			Confidence: confidence,
		})
		if err != nil {
			e.logger.Warn("storing extracted fact failed", zap.Error(err))
			continue
		}
		stored++
	}
	return stored
}

// ParseExtractedFacts pulls the first JSON array out of an LLM reply,
// tolerating prose around it. Anything unparseable yields nil.
func ParseExtractedFacts(reply string) []ExtractedFact {
	start := strings.Index(reply, "[")
	if start < 0 {
		return nil
	}
	end := strings.LastIndex(reply, "]")
	if end <= start {
		return nil
	}

	var facts []ExtractedFact
	if err := json.Unmarshal([]byte(reply[start:end+1]), &facts); err != nil {
		return nil
	}

	valid := facts[:0]
	for _, f := range facts {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		valid = append(valid, f)
	}
	return valid
}
