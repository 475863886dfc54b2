package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxChainDepth bounds the ancestor walk in GetMessageTree. The writer never
// creates cycles, but an accidental one must not hang the caller.
const maxChainDepth = 1000

var (
	// ErrNotFound is returned when a session, message or fact does not exist.
	ErrNotFound = errors.New("memory: record not found")

	// ErrInvalidConfidence is returned when a fact confidence is outside [0,1].
	ErrInvalidConfidence = errors.New("memory: confidence must be in [0,1]")
)

// MetadataStore is the durable relational store for sessions, messages,
// facts, index cross-references and system logs. It exclusively owns the
// persisted rows; the vector and lexical indexes are derived, rebuildable
// views over it.
type MetadataStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewMetadataStore creates a store over an already-migrated gorm DB.
func NewMetadataStore(db *gorm.DB, logger *zap.Logger) *MetadataStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataStore{
		db:     db,
		logger: logger.With(zap.String("component", "metadata_store")),
	}
}

// CreateSession persists a new session. The SessionID is generated when empty.
func (s *MetadataStore) CreateSession(ctx context.Context, session *Session) error {
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession looks a session up by its business id.
func (s *MetadataStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// TouchSession bumps a session's updated_at timestamp.
func (s *MetadataStore) TouchSession(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// AddMessage persists one conversation turn. The owning session is created on
// first use and timestamp-bumped otherwise. When ParentID is set the parent
// must already exist and predate the child; messages are immutable once
// written.
func (s *MetadataStore) AddMessage(ctx context.Context, msg *Message) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.SessionID == "" {
		return fmt.Errorf("add message: session id is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if msg.ParentID != nil && *msg.ParentID != "" {
		parent, err := s.GetMessage(ctx, *msg.ParentID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("add message: parent %s: %w", *msg.ParentID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check parent: %w", err)
		}
		// Parents must predate children or the root-to-leaf chain order breaks.
		if msg.CreatedAt.Before(parent.CreatedAt) {
			return fmt.Errorf("add message: message predates its parent %s", *msg.ParentID)
		}
	}

	_, err := s.GetSession(ctx, msg.SessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		session := &Session{SessionID: msg.SessionID}
		if err := s.CreateSession(ctx, session); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if err := s.TouchSession(ctx, msg.SessionID); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// GetMessage looks a message up by its business id.
func (s *MetadataStore) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var msg Message
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// GetMessageChain returns the most recent limit messages of a session in
// chronological order.
func (s *MetadataStore) GetMessageChain(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var msgs []Message
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("get message chain: %w", err)
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetRecentDialogue returns the most recent limit user/assistant messages of
// a session in chronological order. Tool and system turns are filtered in the
// query so they never shrink the dialogue window.
func (s *MetadataStore) GetRecentDialogue(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var msgs []Message
	q := s.db.WithContext(ctx).
		Where("session_id = ? AND role IN ?", sessionID, []Role{RoleUser, RoleAssistant}).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("get recent dialogue: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessageTree walks parent links upward from messageID until a message
// with no parent and returns the chain in root-to-leaf order. This is how any
// message recovers its full causal ancestry. A missing parent (for example
// one removed by the pruner) ends the walk instead of failing it.
func (s *MetadataStore) GetMessageTree(ctx context.Context, messageID string) ([]Message, error) {
	leaf, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	chain := []Message{*leaf}
	current := leaf
	for depth := 0; depth < maxChainDepth; depth++ {
		if current.ParentID == nil || *current.ParentID == "" {
			break
		}
		parent, err := s.GetMessage(ctx, *current.ParentID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("message chain truncated at missing parent",
				zap.String("message_id", current.MessageID),
				zap.String("parent_id", *current.ParentID))
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, *parent)
		current = parent
	}

	// Collected leaf-to-root; reverse to root-to-leaf.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// AddFact persists a long-term memory unit. Writing an existing FactID
// replaces the stored fact wholesale, it never merges.
func (s *MetadataStore) AddFact(ctx context.Context, fact *Fact) error {
	if fact.Confidence < 0 || fact.Confidence > 1 {
		return ErrInvalidConfidence
	}
	if !ValidCategory(fact.Category) {
		return fmt.Errorf("add fact: unknown category %q", fact.Category)
	}
	if fact.FactID == "" {
		fact.FactID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}
	fact.UpdatedAt = time.Now()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fact_id"}},
		UpdateAll: true,
	}).Create(fact).Error
	if err != nil {
		return fmt.Errorf("create fact: %w", err)
	}
	return nil
}

// GetFact looks a fact up by its business id.
func (s *MetadataStore) GetFact(ctx context.Context, factID string) (*Fact, error) {
	var fact Fact
	err := s.db.WithContext(ctx).Where("fact_id = ?", factID).First(&fact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return &fact, nil
}

// GetFacts returns facts sorted by confidence desc then recency desc.
// Empty sessionID / category select across all sessions / categories.
func (s *MetadataStore) GetFacts(ctx context.Context, sessionID string, category FactCategory) ([]Fact, error) {
	q := s.db.WithContext(ctx).Model(&Fact{})
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var facts []Fact
	if err := q.Order("confidence DESC").Order("created_at DESC").Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}
	return facts, nil
}

// SaveMemoryIndex records the cross-reference from a vector index id back to
// its durable record.
func (s *MetadataStore) SaveMemoryIndex(ctx context.Context, entry *MemoryIndexEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("save memory index: %w", err)
	}
	return nil
}

// AllMessages returns the full message corpus, oldest first. Feed for the
// lexical index rebuild.
func (s *MetadataStore) AllMessages(ctx context.Context) ([]Message, error) {
	var msgs []Message
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("all messages: %w", err)
	}
	return msgs, nil
}

// AllFacts returns the full fact corpus, oldest first.
func (s *MetadataStore) AllFacts(ctx context.Context) ([]Fact, error) {
	var facts []Fact
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("all facts: %w", err)
	}
	return facts, nil
}

// DeleteMessages removes the given messages by business id.
func (s *MetadataStore) DeleteMessages(ctx context.Context, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("message_id IN ?", messageIDs).Delete(&Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteMessagesBefore removes messages created before cutoff.
func (s *MetadataStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete messages before: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteFactsBefore removes facts created before cutoff.
func (s *MetadataStore) DeleteFactsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Fact{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete facts before: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AddSystemLog appends one operational log row.
func (s *MetadataStore) AddSystemLog(ctx context.Context, row *SystemLog) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("add system log: %w", err)
	}
	return nil
}

// CleanupLogs deletes system log rows older than retentionDays and returns
// the number removed.
func (s *MetadataStore) CleanupLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&SystemLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountMessages returns the number of messages in a session.
func (s *MetadataStore) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
