package memory

import (
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// FactCategory classifies a long-term memory unit.
type FactCategory string

const (
	CategoryPreference          FactCategory = "preference"
	CategoryFactual             FactCategory = "factual"
	CategoryHabit               FactCategory = "habit"
	CategoryEntity              FactCategory = "entity"
	CategoryConversationSummary FactCategory = "conversation_summary"
)

// ValidCategory reports whether c is one of the known fact categories.
func ValidCategory(c FactCategory) bool {
	switch c {
	case CategoryPreference, CategoryFactual, CategoryHabit, CategoryEntity, CategoryConversationSummary:
		return true
	}
	return false
}

// Session identifies one conversation thread. Created on the first message,
// timestamp-bumped on every new one, never hard-deleted by this subsystem.
type Session struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SessionID string         `gorm:"size:64;uniqueIndex;not null" json:"session_id"`
	Channel   string         `gorm:"size:32;index" json:"channel"`
	ChatID    string         `gorm:"size:64" json:"chat_id"`
	UserID    string         `gorm:"size:64" json:"user_id,omitempty"`
	Metadata  map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Message is one immutable conversation turn. ParentID forms a singly-linked
// ancestor chain (at most one parent, parents predate children).
type Message struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	MessageID   string         `gorm:"size:64;uniqueIndex;not null" json:"message_id"`
	SessionID   string         `gorm:"size:64;index;not null" json:"session_id"`
	ParentID    *string        `gorm:"size:64;index" json:"parent_id,omitempty"`
	Role        Role           `gorm:"size:16;not null" json:"role"`
	Content     string         `gorm:"type:text" json:"content"`
	ToolCalls   []ToolCall     `gorm:"serializer:json;type:text" json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `gorm:"serializer:json;type:text" json:"tool_results,omitempty"`
	Metadata    map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

// ToolCall is a structured tool invocation attached to a message.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the structured output of a tool invocation.
type ToolResult struct {
	CallID  string `json:"call_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Fact is a long-term memory unit distinct from raw messages. A nil SessionID
// means the fact is global. Re-writing the same FactID replaces, never merges.
type Fact struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	FactID          string       `gorm:"size:64;uniqueIndex;not null" json:"fact_id"`
	SessionID       *string      `gorm:"size:64;index" json:"session_id,omitempty"`
	Category        FactCategory `gorm:"size:32;index;not null" json:"category"`
	Key             string       `gorm:"size:128" json:"key"`
	Value           string       `gorm:"type:text;not null" json:"value"`
	Confidence      float64      `gorm:"not null" json:"confidence"`
	SourceMessageID string       `gorm:"size:64" json:"source_message_id,omitempty"`
	CreatedAt       time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// MemoryIndexEntry cross-references a durable record with its vector index id.
// Created whenever a message or fact is embedded; never updated. Orphans are
// tolerated and simply fail the join lookup.
type MemoryIndexEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SessionID     string    `gorm:"size:64;index" json:"session_id"`
	MessageID     string    `gorm:"size:64;index;not null" json:"message_id"`
	VectorIndexID string    `gorm:"size:64;index;not null" json:"vector_index_id"`
	ContentHash   string    `gorm:"size:64" json:"content_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// SystemLog is an operational log row written by the host process and pruned
// on the same retention schedule as facts and messages. Pass-through sink,
// not part of retrieval.
type SystemLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Level     string         `gorm:"size:16;index" json:"level"`
	Module    string         `gorm:"size:64;index" json:"module"`
	Message   string         `gorm:"type:text" json:"message"`
	Exception string         `gorm:"type:text" json:"exception,omitempty"`
	Metadata  map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}
