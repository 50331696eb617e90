// Package delegate hands a research prompt to a long-running external
// deep-research task and polls it for the result.
package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "o4-mini-deep-research"
)

// ErrDelegateTimeout is returned when the task does not finish within the
// allowed number of polls.
var ErrDelegateTimeout = errors.New("deep research task did not finish in time")

// Task states reported by the Responses API
const (
	stateQueued     = "queued"
	stateInProgress = "in_progress"
	stateCompleted  = "completed"
	stateFailed     = "failed"
	stateCancelled  = "cancelled"
	stateIncomplete = "incomplete"
)

// Citation is a web source the task cited.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Status is the outcome of one poll.
type Status struct {
	Done      bool       `json:"done"`
	Failed    bool       `json:"failed"`
	Error     string     `json:"error,omitempty"`
	Output    string     `json:"output,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("deep research request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to the OpenAI Responses API in background mode.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// New returns a Client with the default endpoint and model.
func New(apiKey string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		Model:   DefaultModel,
		HTTP:    &http.Client{Timeout: time.Minute},
	}
}

type tool struct {
	Type string `json:"type"`
}

type createRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Background bool   `json:"background"`
	Tools      []tool `json:"tools"`
}

type annotation struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type response struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type        string       `json:"type"`
			Text        string       `json:"text"`
			Annotations []annotation `json:"annotations"`
		} `json:"content"`
	} `json:"output"`
}

// Start submits a prompt and returns the task ID.
func (c *Client) Start(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("deep research requires an OpenAI API key")
	}
	body, err := json.Marshal(createRequest{
		Model:      c.Model,
		Input:      prompt,
		Background: true,
		Tools:      []tool{{Type: "web_search_preview"}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp response
	if err := c.do(ctx, http.MethodPost, "/responses", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("deep research response has no task id")
	}
	return resp.ID, nil
}

// Poll reads the current state of a task.
func (c *Client) Poll(ctx context.Context, taskID string) (*Status, error) {
	var resp response
	if err := c.do(ctx, http.MethodGet, "/responses/"+taskID, nil, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case stateQueued, stateInProgress:
		return &Status{}, nil
	case stateCompleted:
		output, citations := collectOutput(&resp)
		return &Status{Done: true, Output: output, Citations: citations}, nil
	case stateFailed, stateCancelled, stateIncomplete:
		msg := resp.Status
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return &Status{Done: true, Failed: true, Error: msg}, nil
	default:
		return nil, fmt.Errorf("unexpected task status %q", resp.Status)
	}
}

// collectOutput joins the message text and dedupes URL citations in order.
func collectOutput(resp *response) (string, []Citation) {
	var (
		parts     []string
		citations []Citation
		seen      = make(map[string]bool)
	)
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type != "output_text" {
				continue
			}
			parts = append(parts, c.Text)
			for _, a := range c.Annotations {
				if a.Type != "url_citation" || a.URL == "" || seen[a.URL] {
					continue
				}
				seen[a.URL] = true
				citations = append(citations, Citation{URL: a.URL, Title: a.Title})
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), citations
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("deep research request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Body: truncate(string(data), 300)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
