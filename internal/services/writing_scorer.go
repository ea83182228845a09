package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/lingopath/lingopath-backend/internal/logger"
)

// WritingScorerService rates a free-form written answer 0-100 against the
// question prompt. Typed answers go straight to the language model;
// photographed answers are OCR'd first.
type WritingScorerService interface {
	ScoreText(ctx context.Context, text, prompt, languageCode string) (float64, error)
	ScoreImage(ctx context.Context, imageKey, prompt, languageCode string) (float64, error)
	Close() error
}

type writingScorerService struct {
	log          *logger.Logger
	baseURL      string
	apiKey       string
	model        string
	httpClient   *http.Client
	visionClient *vision.ImageAnnotatorClient
	bucket       BucketService

	maxRetries int
}

func NewWritingScorerService(log *logger.Logger, bucket BucketService) (WritingScorerService, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeoutSec := 60
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	ctx := context.Background()
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	var vc *vision.ImageAnnotatorClient
	var err error
	if creds != "" {
		vc, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(creds))
	} else {
		vc, err = vision.NewImageAnnotatorClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &writingScorerService{
		log:          log.With("service", "WritingScorerService"),
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		httpClient:   &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		visionClient: vc,
		bucket:       bucket,
		maxRetries:   maxRetries,
	}, nil
}

func (s *writingScorerService) Close() error {
	if s == nil || s.visionClient == nil {
		return nil
	}
	return s.visionClient.Close()
}

func (s *writingScorerService) ScoreText(ctx context.Context, text, prompt, languageCode string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}

	system := "You are a strict language test grader. Rate the student's answer " +
		"to the exercise on a 0-100 scale for correctness, grammar and relevance. " +
		"Respond with JSON only: {\"score\": <number>}."
	user := fmt.Sprintf("Target language: %s\n\nExercise:\n%s\n\nStudent answer:\n%s", languageCode, prompt, text)

	req := chatCompletionRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &chatResponseFormat{Type: "json_object"},
	}

	var resp chatCompletionResponse
	if err := s.do(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return 0, err
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("empty chat completion")
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return 0, fmt.Errorf("bad grader response %q: %w", content, err)
	}

	score := parsed.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

func (s *writingScorerService) ScoreImage(ctx context.Context, imageKey, prompt, languageCode string) (float64, error) {
	raw, err := s.bucket.DownloadFile(ctx, imageKey)
	if err != nil {
		return 0, fmt.Errorf("download image: %w", err)
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: raw},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
			},
		}},
	}
	resp, err := s.visionClient.BatchAnnotateImages(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("vision ocr: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return 0, fmt.Errorf("vision ocr: empty response")
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return 0, fmt.Errorf("vision ocr: %s", r0.Error.Message)
	}

	text := ""
	if fta := r0.FullTextAnnotation; fta != nil {
		text = strings.TrimSpace(fta.Text)
	}
	if text == "" {
		// nothing legible on the photo
		return 0, nil
	}

	return s.ScoreText(ctx, text, prompt, languageCode)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type graderHTTPError struct {
	StatusCode int
	Body       string
}

func (e *graderHTTPError) Error() string {
	return fmt.Sprintf("grader http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return false
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	var httpErr *graderHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

func (s *writingScorerService) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &graderHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (s *writingScorerService) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := s.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("grader decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == s.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		s.log.Warn("grader request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", s.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
