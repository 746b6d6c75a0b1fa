package domain

import "time"

// Category is an archetype label. The closed set is defined by ScoringConfig.
type Category string

// WeightedAnswer is one user response resolved against the quiz definition.
type WeightedAnswer struct {
	QuestionID int      `json:"questionId" yaml:"questionId"`
	Category   Category `json:"category" yaml:"category"`
	Core       bool     `json:"core" yaml:"core"`
}

// ScoringConfig drives a single scoring run.
type ScoringConfig struct {
	Categories    []Category `json:"categories" yaml:"categories"`
	CoreWeight    float64    `json:"coreWeight" yaml:"coreWeight"`
	RegularWeight float64    `json:"regularWeight" yaml:"regularWeight"`
	TieBreakOrder []Category `json:"tieBreakOrder" yaml:"tieBreakOrder"`
}

// Decision names the step of the scoring algorithm that picked the winner.
type Decision string

const (
	DecisionCoreMajority  Decision = "core_majority"
	DecisionHighestScore  Decision = "highest_score"
	DecisionMostCore      Decision = "most_core_questions"
	DecisionQuestionOne   Decision = "question_one_preference"
	DecisionDefaultOrder  Decision = "default_ordering"
	DecisionFallbackOrder Decision = "fallback_first_tied"
)

// ScoringResult is the winner plus enough detail to replay the decision.
type ScoringResult struct {
	Winner         Category             `json:"winner"`
	TotalScores    map[Category]float64 `json:"totalScores"`
	CoreCounts     map[Category]int     `json:"coreCounts"`
	UsedTieBreaker bool                 `json:"usedTieBreaker"`
	TieRule        string               `json:"tieRuleDescription,omitempty"`
	Decision       Decision             `json:"decision"`
	Tied           []Category           `json:"tied,omitempty"`
}

// Option is a selectable answer that maps onto one archetype.
type Option struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Archetype Category `json:"archetype"`
}

// Question is one quiz prompt. Core questions weigh more and feed the majority rule.
type Question struct {
	ID      int      `json:"id"`
	Prompt  string   `json:"prompt"`
	Core    bool     `json:"core"`
	Options []Option `json:"options"`
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// AnswerSubmission is a raw client answer before it is resolved to a category.
type AnswerSubmission struct {
	QuestionID int    `json:"questionId"`
	OptionID   string `json:"optionId"`
}

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

// Message is one entry of a conversation log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionIdentity is the correlated session/conversation pair.
type SessionIdentity struct {
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId,omitempty"`
}
