package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// ErrUnavailable is returned when the organizer backend can't be reached.
var ErrUnavailable = errors.New("organizer is unavailable")

// Organizer turns a prompt holding a raw transcript into meeting notes.
type Organizer interface {
	Organize(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Claude runs the claude CLI in print mode.
type Claude struct {
	// Path to the binary, looked up in PATH. Defaults to "claude".
	Path string
}

func (c Claude) Name() string {
	return "Claude CLI"
}

func (c Claude) Organize(ctx context.Context, prompt string) (string, error) {
	bin := c.Path
	if bin == "" {
		bin = "claude"
	}

	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found: %w", ErrUnavailable, bin, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-p", prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to run %s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

type OllamaConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// Ollama sends the prompt to the chat endpoint of an Ollama server.
type Ollama struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &Ollama{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (o *Ollama) Name() string {
	return "Ollama (" + o.cfg.Model + ")"
}

func (o *Ollama) Organize(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(o.cfg.URL, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}

	return result.Message.Content, nil
}
