package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lingopath/lingopath-backend/internal/logger"
)

// SpeechScorerService turns a spoken answer into a 0-100 pronunciation score:
// the audio is transcribed and the transcript is matched token by token
// against the reference text of the question.
type SpeechScorerService interface {
	ScoreAudio(ctx context.Context, audioKey, referenceText, languageCode string) (float64, error)
	Close() error
}

type speechScorerService struct {
	log    *logger.Logger
	client *speech.Client
	bucket BucketService

	maxRetries int
}

func NewSpeechScorerService(log *logger.Logger, bucket BucketService) (SpeechScorerService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "SpeechScorerService")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	ctx := context.Background()

	var c *speech.Client
	var err error
	if creds != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		c, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechScorerService{
		log:        slog,
		client:     c,
		bucket:     bucket,
		maxRetries: 4,
	}, nil
}

func (s *speechScorerService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechScorerService) ScoreAudio(ctx context.Context, audioKey, referenceText, languageCode string) (float64, error) {
	if strings.TrimSpace(audioKey) == "" {
		return 0, fmt.Errorf("missing audio key")
	}
	if strings.TrimSpace(referenceText) == "" {
		return 0, fmt.Errorf("missing reference text")
	}

	// Speaking answers are short clips; a sync Recognize with a strict
	// timeout is enough.
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	audio, err := s.bucket.DownloadFile(ctx, audioKey)
	if err != nil {
		return 0, fmt.Errorf("download audio: %w", err)
	}
	if len(audio) == 0 {
		return 0, nil
	}

	if languageCode == "" {
		languageCode = "en-US"
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               languageCode,
			EnableAutomaticPunctuation: false,
			Encoding:                   inferAudioEncoding(audioKey),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := s.retryRecognize(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("speech recognize: %w", err)
	}

	transcript := primaryTranscript(resp)
	score := tokenOverlapScore(referenceText, transcript)

	s.log.Debug("scored speaking answer",
		"audio_key", audioKey,
		"language", languageCode,
		"score", score,
	)
	return score, nil
}

func (s *speechScorerService) retryRecognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := s.client.Recognize(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func inferAudioEncoding(key string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func primaryTranscript(resp *speechpb.RecognizeResponse) string {
	if resp == nil {
		return ""
	}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(r.Alternatives[0].Transcript)
	}
	return strings.TrimSpace(full.String())
}

// tokenOverlapScore is the fraction of reference tokens found in the spoken
// transcript, scaled to 0-100. Matching is case-insensitive and ignores
// punctuation; each transcript token only counts once.
func tokenOverlapScore(reference, transcript string) float64 {
	refTokens := normalizeTokens(reference)
	if len(refTokens) == 0 {
		return 0
	}

	available := map[string]int{}
	for _, t := range normalizeTokens(transcript) {
		available[t]++
	}

	matched := 0
	for _, t := range refTokens {
		if available[t] > 0 {
			available[t]--
			matched++
		}
	}
	return float64(matched) / float64(len(refTokens)) * 100
}

func normalizeTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !isWordRune(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	if r >= 'a' && r <= 'z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	// keep non-ASCII letters (accented characters, CJK, ...)
	return r > 127
}
