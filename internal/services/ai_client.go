package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/lingopath/lingopath-backend/internal/logger"
)

// AIScoringClient is the single seam the grading pipeline talks to for
// machine-scored question types. Both methods return a 0-100 score.
type AIScoringClient interface {
	ScorePronunciation(ctx context.Context, audioKey, referenceText, languageCode string) (float64, error)
	ScoreWriting(ctx context.Context, text, prompt, imageKey, languageCode string) (float64, error)
}

type aiScoringClient struct {
	log     *logger.Logger
	speech  SpeechScorerService
	writing WritingScorerService
}

func NewAIScoringClient(log *logger.Logger, speech SpeechScorerService, writing WritingScorerService) AIScoringClient {
	return &aiScoringClient{
		log:     log.With("service", "AIScoringClient"),
		speech:  speech,
		writing: writing,
	}
}

func (c *aiScoringClient) ScorePronunciation(ctx context.Context, audioKey, referenceText, languageCode string) (float64, error) {
	if c.speech == nil {
		return 0, fmt.Errorf("speech scorer not configured")
	}
	return c.speech.ScoreAudio(ctx, audioKey, referenceText, languageCode)
}

func (c *aiScoringClient) ScoreWriting(ctx context.Context, text, prompt, imageKey, languageCode string) (float64, error) {
	if c.writing == nil {
		return 0, fmt.Errorf("writing scorer not configured")
	}
	if strings.TrimSpace(imageKey) != "" {
		return c.writing.ScoreImage(ctx, imageKey, prompt, languageCode)
	}
	return c.writing.ScoreText(ctx, text, prompt, languageCode)
}
