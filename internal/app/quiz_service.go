package app

import (
	"context"
	"fmt"

	"archetype-chat-service/internal/chatapi"
	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/logger"
	"archetype-chat-service/internal/scoring"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizSubmitter persists a scored quiz remotely.
type QuizSubmitter interface {
	SubmitQuiz(ctx context.Context, sub chatapi.QuizSubmission) error
}

// FlagStore holds the per-client "already submitted" markers.
type FlagStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// QuizService scores archetype quizzes and submits results.
type QuizService struct {
	quizzes   QuizRepository
	submitter QuizSubmitter
	config    domain.ScoringConfig
	log       *logger.Logger
}

// SubmitOutcome is the result of Submit. AlreadySubmitted means the remote
// call was skipped because this client had submitted the quiz before.
type SubmitOutcome struct {
	QuizID           string               `json:"quizId"`
	Result           domain.ScoringResult `json:"result"`
	AlreadySubmitted bool                 `json:"alreadySubmitted"`
}

func NewQuizService(quizzes QuizRepository, submitter QuizSubmitter, cfg domain.ScoringConfig, log *logger.Logger) (*QuizService, error) {
	if err := scoring.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &QuizService{
		quizzes:   quizzes,
		submitter: submitter,
		config:    cfg,
		log:       log.With("component", "quiz"),
	}, nil
}

// Score resolves raw answers against the quiz definition and scores them.
func (s *QuizService) Score(ctx context.Context, quizID string, answers []domain.AnswerSubmission) (domain.ScoringResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.ScoringResult{}, err
	}
	weighted, err := ResolveAnswers(quiz, answers)
	if err != nil {
		return domain.ScoringResult{}, err
	}
	return scoring.Score(weighted, s.config)
}

// Submit scores the quiz and, unless flags already mark it as submitted,
// sends the result to the remote service. The flag is written only after
// the remote call succeeds, so a failed submit can be retried.
func (s *QuizService) Submit(ctx context.Context, flags FlagStore, sessionID, quizID string, answers []domain.AnswerSubmission) (SubmitOutcome, error) {
	result, err := s.Score(ctx, quizID, answers)
	if err != nil {
		return SubmitOutcome{}, err
	}
	out := SubmitOutcome{QuizID: quizID, Result: result}

	key := submittedKey(quizID)
	if _, done, err := flags.Get(ctx, key); err != nil {
		return SubmitOutcome{}, fmt.Errorf("read submitted flag: %w", err)
	} else if done {
		out.AlreadySubmitted = true
		return out, nil
	}

	err = s.submitter.SubmitQuiz(ctx, chatapi.QuizSubmission{
		QuizID:         quizID,
		SessionID:      sessionID,
		Archetype:      result.Winner,
		TotalScores:    result.TotalScores,
		CoreCounts:     result.CoreCounts,
		UsedTieBreaker: result.UsedTieBreaker,
		TieRule:        result.TieRule,
		Answers:        answers,
	})
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("submit quiz %s: %w", quizID, err)
	}
	if err := flags.Set(ctx, key, "1"); err != nil {
		// The remote side has the result; a resubmit is harmless.
		s.log.Warn("persist submitted flag failed", "quiz_id", quizID, "error", err)
	}
	s.log.Info("quiz submitted", "quiz_id", quizID, "session_id", sessionID, "archetype", result.Winner)
	return out, nil
}

// ResolveAnswers maps option choices onto archetypes, taking the core flag
// from the question. A repeated question keeps its first position but the
// latest choice.
func ResolveAnswers(quiz domain.Quiz, answers []domain.AnswerSubmission) ([]domain.WeightedAnswer, error) {
	byID := make(map[int]*domain.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		byID[quiz.Questions[i].ID] = &quiz.Questions[i]
	}

	out := make([]domain.WeightedAnswer, 0, len(answers))
	pos := make(map[int]int, len(answers))
	for _, a := range answers {
		question, ok := byID[a.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, a.QuestionID)
		}
		var selected *domain.Option
		for i := range question.Options {
			if question.Options[i].ID == a.OptionID {
				selected = &question.Options[i]
				break
			}
		}
		if selected == nil {
			return nil, fmt.Errorf("%w: %q on question %d", domain.ErrOptionNotFound, a.OptionID, a.QuestionID)
		}

		w := domain.WeightedAnswer{QuestionID: question.ID, Category: selected.Archetype, Core: question.Core}
		if i, seen := pos[question.ID]; seen {
			out[i] = w
			continue
		}
		pos[question.ID] = len(out)
		out = append(out, w)
	}
	return out, nil
}

func submittedKey(quizID string) string {
	return "quiz:submitted:" + quizID
}
