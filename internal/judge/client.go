// Package judge is the contract wrapper around a remote Judge0-compatible code execution service.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotConfigured       = errors.New("judge base url not configured")
	ErrUnsupportedLanguage = errors.New("language not supported by judge")
)

// Config holds judge connection and execution limits.
type Config struct {
	BaseURL           string
	APIKey            string
	APIHost           string
	Timeout           time.Duration
	CPUTimeLimit      float64
	MemoryLimitKB     int
	RejectedStatusIDs []int
	Languages         map[string]int // language name -> judge language id
}

// Submission is one program run against one stdin.
type Submission struct {
	SourceCode     string
	LanguageID     int
	Stdin          *string
	ExpectedOutput *string
}

// Result is the normalized outcome of one run. Transport failures are reported here as
// INDETERMINATE with Err set, never as a returned error.
type Result struct {
	Verdict       Verdict
	StatusID      int
	Description   string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	Time          *float64
	Memory        *int
	Token         string
	Err           error
}

// Executor is what the grading path depends on.
type Executor interface {
	Execute(ctx context.Context, sub Submission) *Result
	LanguageID(language string) (int, error)
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	classifier Classifier
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CPUTimeLimit <= 0 {
		cfg.CPUTimeLimit = 5
	}
	if cfg.MemoryLimitKB <= 0 {
		cfg.MemoryLimitKB = 256000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		classifier: NewClassifier(cfg.RejectedStatusIDs),
		logger:     logger,
	}
}

type submissionRequest struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          *string `json:"stdin,omitempty"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
	MemoryLimit    int     `json:"memory_limit"`
}

type submissionResponse struct {
	Token  string `json:"token"`
	Status *struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
}

// LanguageID resolves a language name (case-insensitive) or a numeric judge id.
func (c *Client) LanguageID(language string) (int, error) {
	language = strings.TrimSpace(language)
	if id, err := strconv.Atoi(language); err == nil && id > 0 {
		return id, nil
	}
	for name, id := range c.cfg.Languages {
		if strings.EqualFold(name, language) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}

// Execute runs one submission synchronously with the per-call timeout.
func (c *Client) Execute(ctx context.Context, sub Submission) *Result {
	if c.cfg.BaseURL == "" {
		return indeterminate(ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(submissionRequest{
		SourceCode:     sub.SourceCode,
		LanguageID:     sub.LanguageID,
		Stdin:          sub.Stdin,
		ExpectedOutput: sub.ExpectedOutput,
		CPUTimeLimit:   c.cfg.CPUTimeLimit,
		MemoryLimit:    c.cfg.MemoryLimitKB,
	})
	if err != nil {
		return indeterminate(fmt.Errorf("failed to encode submission: %w", err))
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/submissions?" + url.Values{
		"base64_encoded": {"false"},
		"wait":           {"true"},
		"fields":         {"*"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return indeterminate(fmt.Errorf("failed to build judge request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	}
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Judge request failed", "language_id", sub.LanguageID, "error", err)
		return indeterminate(fmt.Errorf("judge unavailable: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return indeterminate(fmt.Errorf("failed to read judge response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Judge returned non-success status", "http_status", resp.StatusCode)
		return indeterminate(fmt.Errorf("judge returned HTTP %d", resp.StatusCode))
	}

	var payload submissionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return indeterminate(fmt.Errorf("failed to decode judge response: %w", err))
	}

	result := &Result{
		Token:         payload.Token,
		Stdout:        deref(payload.Stdout),
		Stderr:        deref(payload.Stderr),
		CompileOutput: deref(payload.CompileOutput),
		Message:       deref(payload.Message),
		Memory:        payload.Memory,
		Verdict:       VerdictIndeterminate,
	}
	if payload.Time != nil {
		if t, err := strconv.ParseFloat(*payload.Time, 64); err == nil {
			result.Time = &t
		}
	}
	if payload.Status != nil {
		result.StatusID = payload.Status.ID
		result.Description = payload.Status.Description
		result.Verdict = c.classifier.Classify(payload.Status.ID)
	}

	c.logger.Debug("Judge result",
		"token", result.Token,
		"status_id", result.StatusID,
		"verdict", result.Verdict)

	return result
}

func indeterminate(err error) *Result {
	return &Result{Verdict: VerdictIndeterminate, Message: err.Error(), Err: err}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
