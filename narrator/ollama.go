// narrator/ollama.go
package narrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wfunc/roundtable/config"
	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
)

const openingTokens = 200

// Config 叙述者配置
type Config struct {
	URL            string
	Model          string
	Timeout        time.Duration
	Temperature    float64
	TopP           float64
	MaxTokens      int
	MinLength      int
	RecentLogLimit int
}

// FromConfig builds the narrator settings from the loaded configuration.
func FromConfig(cfg config.NarratorConfig, recentLogLimit int) Config {
	return Config{
		URL:            cfg.URL,
		Model:          cfg.Model,
		Timeout:        cfg.Timeout,
		Temperature:    cfg.Temperature,
		TopP:           cfg.TopP,
		MaxTokens:      cfg.MaxTokens,
		MinLength:      cfg.MinLength,
		RecentLogLimit: recentLogLimit,
	}
}

// OllamaNarrator calls an Ollama server's generate endpoint.
type OllamaNarrator struct {
	cfg    Config
	client *http.Client
}

func NewOllama(cfg Config, client *http.Client) *OllamaNarrator {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &OllamaNarrator{cfg: cfg, client: client}
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate implements Narrator.
func (n *OllamaNarrator) Generate(ctx context.Context, snap models.Snapshot, actions []models.ActionLine) (string, error) {
	prompt := BuildPrompt(snap, actions, n.cfg.RecentLogLimit)
	return n.generate(ctx, prompt, n.cfg.MaxTokens)
}

// Open implements Opener.
func (n *OllamaNarrator) Open(ctx context.Context, campaign, location string) (string, error) {
	return n.generate(ctx, OpeningPrompt(campaign, location), openingTokens)
}

func (n *OllamaNarrator) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  n.cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: n.cfg.Temperature,
			TopP:        n.cfg.TopP,
			NumPredict:  maxTokens,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Log.Warnf("Ollama API error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	text := Clean(out.Response)
	if utf8.RuneCountInString(text) < n.cfg.MinLength || text == "" {
		return "", fmt.Errorf("%w: %d characters", ErrTooShort, utf8.RuneCountInString(text))
	}
	return text, nil
}

// Ping checks the server is reachable by listing its models.
func (n *OllamaNarrator) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.URL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
