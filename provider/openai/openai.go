package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// client implements core.AIService using OpenAI's chat completions API.
type client struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	baseURL     string
	httpClient  *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request represents a request to the OpenAI API
type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// response represents a response from the OpenAI API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new OpenAI-backed completion client.
func NewClient(apiKey, model string, temperature float64, maxTokens int, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		baseURL:     openaiAPIURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Respond produces a completion for a single agent. The agent's role and
// capabilities shape the system prompt; contextData is appended as plain
// key/value lines.
func (c *client) Respond(ctx context.Context, agent core.Agent, query string, contextData map[string]interface{}) (string, error) {
	systemPrompt := fmt.Sprintf(
		"You are %s, an agent with the role %q working inside a multi-agent reasoning session. Answer directly and concisely.",
		displayName(agent), agent.Role)
	if len(agent.Capabilities) > 0 {
		systemPrompt += fmt.Sprintf(" Your capabilities: %s.", strings.Join(agent.Capabilities, ", "))
	}

	userPrompt := query
	if len(contextData) > 0 {
		var b strings.Builder
		b.WriteString(query)
		b.WriteString("\n\nCONTEXT:\n")
		for k, v := range contextData {
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
		userPrompt = b.String()
	}

	return c.complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
}

// Evaluate scores a thought in [0,1]. The model is asked for a bare number;
// the last number found in the reply is used.
func (c *client) Evaluate(ctx context.Context, thought core.ThoughtNode, contextData map[string]interface{}) (float64, error) {
	var b strings.Builder
	b.WriteString("Rate the quality of the following reasoning step between 0 and 1. Respond with only the number.\n\nSTEP:\n")
	b.WriteString(thought.Content)
	if thought.Reasoning != "" {
		b.WriteString("\n\nREASONING:\n")
		b.WriteString(thought.Reasoning)
	}
	if len(contextData) > 0 {
		b.WriteString("\n\nCONTEXT:\n")
		for k, v := range contextData {
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
	}

	answer, err := c.complete(ctx, []Message{
		{Role: "system", Content: "You are a strict reasoning evaluator. Respond with a single number between 0 and 1."},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		return 0, err
	}
	return parseScore(answer)
}

func (c *client) complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

var scorePattern = regexp.MustCompile(`[01](?:\.[0-9]+)?`)

func parseScore(answer string) (float64, error) {
	matches := scorePattern.FindAllString(answer, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("no score found in %q", answer)
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing score %q: %w", matches[len(matches)-1], err)
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, nil
}

func displayName(agent core.Agent) string {
	if agent.Name != "" {
		return agent.Name
	}
	if agent.ID != "" {
		return agent.ID
	}
	return "an anonymous agent"
}
