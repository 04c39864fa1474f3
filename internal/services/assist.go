package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/pkg/errors"
)

const (
	// FallbackText is shown in place of a completion when the service fails.
	FallbackText = "The assistant is unavailable right now. Please try again later."
	// SummaryWindow is how many of the latest messages a summary looks at.
	SummaryWindow = 20
)

// Completer turns a prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPCompleter calls an OpenAI-compatible chat completions endpoint.
type HTTPCompleter struct {
	URL    string
	APIKey string
	Model  string
	Client *http.Client
}

func NewHTTPCompleter(url, apiKey, model string, timeout time.Duration) *HTTPCompleter {
	return &HTTPCompleter{
		URL:    strings.TrimRight(url, "/") + "/chat/completions",
		APIKey: apiKey,
		Model:  model,
		Client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You help people write short chat messages. Reply with the result only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   400,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "completion request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Errorf("completion service returned %d: %s", resp.StatusCode, snippet)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decode completion")
	}
	if len(out.Choices) == 0 {
		return "", errors.New("completion service returned no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("completion service returned empty text")
	}
	return text, nil
}

// Assist offers rewrite and summary helpers. Nothing it does is persisted.
type Assist struct {
	completer Completer
	logger    *slog.Logger
}

func NewAssist(completer Completer, logger *slog.Logger) *Assist {
	return &Assist{completer: completer, logger: logger}
}

var stylePrompts = map[models.RewriteStyle]string{
	models.StyleFormal:   "Rewrite this message in a polite, formal tone",
	models.StyleFriendly: "Rewrite this message in a warm, friendly and casual tone",
	models.StyleFix:      "Fix the spelling and grammar of this message without changing its meaning or tone",
}

func (a *Assist) Rewrite(ctx context.Context, text string, style models.RewriteStyle) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.ErrEmptyText
	}
	if !style.Valid() {
		return "", apperr.ErrInvalidStyle
	}

	prompt := fmt.Sprintf("%s:\n\n%s", stylePrompts[style], text)
	out, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn("rewrite failed", "style", string(style), "error", err)
		return "", apperr.Upstream(err)
	}
	return out, nil
}

// Summarize summarizes the last SummaryWindow messages. names maps sender ids
// to display names; unknown senders are labelled by id.
func (a *Assist) Summarize(ctx context.Context, msgs []models.Message, names map[string]string) (string, error) {
	if len(msgs) > SummaryWindow {
		msgs = msgs[len(msgs)-SummaryWindow:]
	}
	if len(msgs) == 0 {
		return "", apperr.Validation("nothing to summarize yet")
	}

	var b strings.Builder
	b.WriteString("Summarize this conversation in two or three sentences:\n\n")
	for _, m := range msgs {
		name := names[m.SenderID]
		if name == "" {
			name = m.SenderID
		}
		fmt.Fprintf(&b, "%s: %s\n", name, m.Text)
	}

	out, err := a.completer.Complete(ctx, b.String())
	if err != nil {
		a.logger.Warn("summarize failed", "messages", len(msgs), "error", err)
		return "", apperr.Upstream(err)
	}
	return out, nil
}
