package retrieval

import (
	"strings"

	"go.uber.org/zap"
)

// Intent is the advisory classification of a query. The retrieval pipeline
// always queries both indices regardless of intent, so a misclassification
// can never cause missed recall, only mis-prioritized downstream consumers.
type Intent string

const (
	IntentEpisodic  Intent = "episodic"
	IntentKnowledge Intent = "knowledge"
	IntentHybrid    Intent = "hybrid"
)

// Episodic markers point at past conversation turns; knowledge markers at
// definitional or instructional questions. Both sets carry English and
// Indonesian phrasing.
var (
	episodicKeywords = []string{
		"you said", "you told", "i said", "i told", "we talked",
		"remember", "recall", "earlier", "last time", "before",
		"yesterday", "previous", "again",
		"tadi", "kemarin", "sebelumnya", "ingat", "kamu bilang", "aku bilang",
		"waktu itu", "barusan",
	}
	knowledgeKeywords = []string{
		"what is", "what are", "who is", "define", "explain",
		"how do", "how to", "how does", "why does", "why is",
		"meaning of", "difference between", "tell me about",
		"apa itu", "apa arti", "bagaimana", "jelaskan", "kenapa",
		"siapa itu", "caranya",
	}
)

// SmartRouter is a stateless keyword-rule intent classifier.
type SmartRouter struct {
	logger *zap.Logger
}

// NewSmartRouter creates a router.
func NewSmartRouter(logger *zap.Logger) *SmartRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SmartRouter{logger: logger.With(zap.String("component", "smart_router"))}
}

// Route classifies a query. Episodic markers without knowledge markers yield
// episodic, the inverse yields knowledge; both-or-neither (including the
// empty query) yields hybrid.
func (r *SmartRouter) Route(query string) Intent {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return IntentHybrid
	}

	episodic := matchesAny(q, episodicKeywords)
	knowledge := matchesAny(q, knowledgeKeywords)

	intent := IntentHybrid
	switch {
	case episodic && !knowledge:
		intent = IntentEpisodic
	case knowledge && !episodic:
		intent = IntentKnowledge
	}

	r.logger.Debug("query routed",
		zap.String("intent", string(intent)),
		zap.Bool("episodic_match", episodic),
		zap.Bool("knowledge_match", knowledge))
	return intent
}

func matchesAny(query string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(query, kw) {
			return true
		}
	}
	return false
}
