package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lingopath/lingopath-backend/internal/config"
	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/types"
)

// aiPassThreshold is the fraction of the 0-100 scale a machine-scored answer
// must reach to count as correct. A passing item earns the full question
// weight; the raw score is kept on the snapshot for review.
const aiPassThreshold = 0.70

// fillBlankDelimiter separates the accepted alternatives in a fill-blank
// answer key.
const fillBlankDelimiter = "||"

// GradingResult is the aggregate over every question of a session after a
// grading pass.
type GradingResult struct {
	Score       float64
	MaxScore    float64
	Percentage  float64
	NeedsReview bool
}

// GradingService grades the snapshot questions of one session. Deterministic
// types are scored inline; speaking and writing go through the AI scoring
// client with a bounded concurrency and a per-item timeout. A single failing
// scorer is absorbed as zero points so one flaky provider cannot block a
// whole session; only a total scorer outage fails the pass.
type GradingService interface {
	// GradeDeterministic scores every ungraded non-AI question in place.
	GradeDeterministic(questions []*types.SessionQuestion) error
	// GradeMachineScored scores every ungraded speaking/writing question.
	GradeMachineScored(ctx context.Context, languageCode string, questions []*types.SessionQuestion) error
}

type gradingService struct {
	log *logger.Logger
	ai  AIScoringClient
	cfg config.GradingConfig
}

func NewGradingService(baseLog *logger.Logger, ai AIScoringClient, cfg config.GradingConfig) GradingService {
	return &gradingService{
		log: baseLog.With("service", "GradingService"),
		ai:  ai,
		cfg: cfg,
	}
}

// IsAIScored reports whether a question type needs the AI scoring client.
func IsAIScored(questionType string) bool {
	return questionType == types.QuestionTypeSpeaking || questionType == types.QuestionTypeWriting
}

// HasAIScoredItems reports whether any question in the snapshot needs
// asynchronous grading.
func HasAIScoredItems(questions []*types.SessionQuestion) bool {
	for _, q := range questions {
		if q != nil && IsAIScored(q.Type) {
			return true
		}
	}
	return false
}

type deterministicGrader func(correctAnswer string, answer types.AnswerInput) bool

var deterministicGraders = map[string]deterministicGrader{
	types.QuestionTypeMultipleChoice: gradeExactMatch,
	types.QuestionTypeOrdering:       gradeOrdering,
	types.QuestionTypeFillBlank:      gradeFillBlank,
}

func (s *gradingService) GradeDeterministic(questions []*types.SessionQuestion) error {
	now := time.Now()

	for _, q := range questions {
		if q == nil || q.GradedAt != nil || IsAIScored(q.Type) {
			continue
		}
		grade, ok := deterministicGraders[q.Type]
		if !ok {
			return fmt.Errorf("unknown question type %q", q.Type)
		}

		ans := decodeAnswer(q.UserAnswer)
		correct := grade(q.CorrectAnswer, ans)
		gradedAt := now
		q.IsCorrect = &correct
		q.GradedAt = &gradedAt
		if correct {
			q.AwardedPoints = q.Weight
		} else {
			q.AwardedPoints = 0
		}
	}
	return nil
}

func (s *gradingService) GradeMachineScored(ctx context.Context, languageCode string, questions []*types.SessionQuestion) error {
	var pending []*types.SessionQuestion
	for _, q := range questions {
		if q != nil && q.GradedAt == nil && IsAIScored(q.Type) {
			pending = append(pending, q)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	concurrency := s.cfg.AIConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	type itemResult struct {
		score float64
		err   error
	}
	results := make([]itemResult, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, q := range pending {
		i, q := i, q
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(gctx, s.cfg.AITimeout())
			defer cancel()

			ans := decodeAnswer(q.UserAnswer)
			var score float64
			var err error
			switch q.Type {
			case types.QuestionTypeSpeaking:
				score, err = s.ai.ScorePronunciation(itemCtx, ans.AudioKey, q.Transcript, languageCode)
			case types.QuestionTypeWriting:
				score, err = s.ai.ScoreWriting(itemCtx, ans.Text, q.PromptMD, ans.ImageKey, languageCode)
			default:
				err = fmt.Errorf("question type %q is not machine-scored", q.Type)
			}
			results[i] = itemResult{score: score, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}
	// Everything failing means the scoring backend is down; leave the items
	// ungraded so a retried run scores them for real.
	if failed == len(pending) {
		return fmt.Errorf("all %d machine-scored items failed, last error: %w", failed, results[len(results)-1].err)
	}

	now := time.Now()
	for i, q := range pending {
		r := results[i]
		gradedAt := now
		q.GradedAt = &gradedAt
		if r.err != nil {
			s.log.Warn("machine scoring failed, awarding zero",
				"question_id", q.QuestionID,
				"type", q.Type,
				"error", r.err.Error(),
			)
			correct := false
			q.IsCorrect = &correct
			q.AwardedPoints = 0
			q.AIScore = nil
			continue
		}

		score := clampScore(r.score)
		q.AIScore = &score
		correct := score >= aiPassThreshold*100
		q.IsCorrect = &correct
		if correct {
			q.AwardedPoints = q.Weight
		} else {
			q.AwardedPoints = 0
		}
	}
	return nil
}

// ZeroUngradedMachineScored stamps every still-ungraded machine-scored item
// as scored zero. The worker calls it when the scoring backend stayed down
// past the retry budget: the attempt finalizes with those items at zero
// instead of holding the session in grading forever.
func ZeroUngradedMachineScored(questions []*types.SessionQuestion) {
	now := time.Now()
	for _, q := range questions {
		if q == nil || q.GradedAt != nil || !IsAIScored(q.Type) {
			continue
		}
		gradedAt := now
		correct := false
		q.GradedAt = &gradedAt
		q.IsCorrect = &correct
		q.AwardedPoints = 0
		q.AIScore = nil
	}
}

// Summarize folds graded questions into session totals. Percentage is zero
// when the snapshot carries no weight; a session with machine-scored items
// needs review unless it came out perfect.
func Summarize(questions []*types.SessionQuestion) *GradingResult {
	res := &GradingResult{}
	hasAI := false
	for _, q := range questions {
		if q == nil {
			continue
		}
		res.Score += q.AwardedPoints
		res.MaxScore += q.Weight
		if IsAIScored(q.Type) {
			hasAI = true
		}
	}
	if res.MaxScore > 0 {
		res.Percentage = res.Score / res.MaxScore * 100
	}
	res.NeedsReview = hasAI && res.Percentage < 100
	return res
}

func decodeAnswer(raw []byte) types.AnswerInput {
	var ans types.AnswerInput
	if len(raw) == 0 {
		return ans
	}
	_ = json.Unmarshal(raw, &ans)
	return ans
}

func gradeExactMatch(correctAnswer string, answer types.AnswerInput) bool {
	given := strings.TrimSpace(answer.Text)
	if given == "" {
		return false
	}
	return strings.EqualFold(given, strings.TrimSpace(correctAnswer))
}

// gradeOrdering compares comma-separated sequences element by element,
// ignoring case and whitespace around the elements.
func gradeOrdering(correctAnswer string, answer types.AnswerInput) bool {
	want := splitTrim(correctAnswer, ",")
	got := splitTrim(answer.Text, ",")
	if len(want) == 0 || len(want) != len(got) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(want[i], got[i]) {
			return false
		}
	}
	return true
}

// gradeFillBlank accepts any of the "||"-delimited alternatives,
// case-insensitively.
func gradeFillBlank(correctAnswer string, answer types.AnswerInput) bool {
	given := strings.ToLower(strings.TrimSpace(answer.Text))
	if given == "" {
		return false
	}
	for _, alt := range strings.Split(correctAnswer, fillBlankDelimiter) {
		if given == strings.ToLower(strings.TrimSpace(alt)) {
			return true
		}
	}
	return false
}

func splitTrim(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
