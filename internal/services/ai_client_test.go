package services

import (
	"context"
	"testing"

	"github.com/lingopath/lingopath-backend/internal/repos/testutil"
)

type recordingWritingScorer struct {
	textCalls  int
	imageCalls int
	lastKey    string
	score      float64
}

func (f *recordingWritingScorer) ScoreText(ctx context.Context, text, prompt, languageCode string) (float64, error) {
	f.textCalls++
	return f.score, nil
}

func (f *recordingWritingScorer) ScoreImage(ctx context.Context, imageKey, prompt, languageCode string) (float64, error) {
	f.imageCalls++
	f.lastKey = imageKey
	return f.score, nil
}

func (f *recordingWritingScorer) Close() error { return nil }

func TestScoreWritingRoutesImageAnswersToOCR(t *testing.T) {
	scorer := &recordingWritingScorer{score: 85}
	client := NewAIScoringClient(testutil.Logger(t), nil, scorer)
	ctx := context.Background()

	got, err := client.ScoreWriting(ctx, "", "Describe your day", "answers/photo.jpg", "fr-FR")
	if err != nil {
		t.Fatalf("ScoreWriting (image): %v", err)
	}
	if got != 85 {
		t.Fatalf("score: want=85 got=%v", got)
	}
	if scorer.imageCalls != 1 || scorer.textCalls != 0 {
		t.Fatalf("routing: want image path got image=%d text=%d", scorer.imageCalls, scorer.textCalls)
	}
	if scorer.lastKey != "answers/photo.jpg" {
		t.Fatalf("image key: want=answers/photo.jpg got=%q", scorer.lastKey)
	}

	got, err = client.ScoreWriting(ctx, "j'ai mange une pomme", "Describe your day", "", "fr-FR")
	if err != nil {
		t.Fatalf("ScoreWriting (text): %v", err)
	}
	if got != 85 {
		t.Fatalf("score: want=85 got=%v", got)
	}
	if scorer.imageCalls != 1 || scorer.textCalls != 1 {
		t.Fatalf("routing: want text path got image=%d text=%d", scorer.imageCalls, scorer.textCalls)
	}
}

func TestScoreWritingWithoutScorerFails(t *testing.T) {
	client := NewAIScoringClient(testutil.Logger(t), nil, nil)
	if _, err := client.ScoreWriting(context.Background(), "text", "prompt", "", "fr-FR"); err == nil {
		t.Fatalf("unconfigured writing scorer must error")
	}
	if _, err := client.ScorePronunciation(context.Background(), "a.wav", "ref", "fr-FR"); err == nil {
		t.Fatalf("unconfigured speech scorer must error")
	}
}
