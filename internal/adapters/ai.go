package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openautogroup/lotview/internal/store"
)

const (
	DefaultAIBaseURL = "https://api.openai.com/v1"
	DefaultAIModel   = "gpt-4o-mini"

	defaultAITemperature = 0.7
	defaultAIMaxTokens   = 300
)

var ErrNoAIKey = errors.New("adapters: no AI api key configured")

// AI generates conversational replies and vehicle copy through an
// OpenAI-compatible completions endpoint. Model, temperature, max tokens and
// the system prompt are per-dealership knobs with platform defaults.
type AI struct {
	client  *Client
	BaseURL string
	APIKey  string
}

func NewAI(client *Client, baseURL, apiKey string) *AI {
	if baseURL == "" {
		baseURL = DefaultAIBaseURL
	}
	return &AI{client: client, BaseURL: baseURL, APIKey: apiKey}
}

// Turn is one message of conversation history, oldest first.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMsg `json:"message"`
	} `json:"choices"`
}

// Reply produces the assistant's next message for a customer conversation.
func (a *AI) Reply(ctx context.Context, d *store.Dealership, history []Turn) (string, error) {
	prompt := d.AIReplyPrompt
	if prompt == "" {
		prompt = fmt.Sprintf("You are a helpful assistant for the car dealership %q. "+
			"Answer customer questions about inventory, financing and visits. "+
			"Be concise and friendly. If the customer wants to speak to a person, say a team member will follow up shortly.", d.Name)
	}
	msgs := make([]chatMsg, 0, len(history)+1)
	msgs = append(msgs, chatMsg{Role: "system", Content: prompt})
	for _, t := range history {
		msgs = append(msgs, chatMsg{Role: t.Role, Content: t.Content})
	}
	return a.complete(ctx, d, msgs)
}

// DescribeVehicle writes listing copy for a vehicle.
func (a *AI) DescribeVehicle(ctx context.Context, d *store.Dealership, v *store.Vehicle) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write an engaging, truthful marketplace description for this vehicle. 2-3 short paragraphs, no headers.\n\n")
	fmt.Fprintf(&sb, "%d %s %s", v.Year, v.Make, v.Model)
	if v.Trim != "" {
		fmt.Fprintf(&sb, " %s", v.Trim)
	}
	fmt.Fprintf(&sb, "\nPrice: $%d\nOdometer: %d km\n", v.Price, v.Odometer)
	if v.Type != "" {
		fmt.Fprintf(&sb, "Body style: %s\n", v.Type)
	}
	if len(v.Badges) > 0 {
		fmt.Fprintf(&sb, "Highlights: %s\n", strings.Join(v.Badges, ", "))
	}
	msgs := []chatMsg{
		{Role: "system", Content: fmt.Sprintf("You write vehicle listings for the dealership %q.", d.Name)},
		{Role: "user", Content: sb.String()},
	}
	return a.complete(ctx, d, msgs)
}

func (a *AI) complete(ctx context.Context, d *store.Dealership, msgs []chatMsg) (string, error) {
	if a.APIKey == "" {
		return "", ErrNoAIKey
	}
	req := chatRequest{
		Model:       d.AIModel,
		Messages:    msgs,
		Temperature: d.AITemperature,
		MaxTokens:   d.AIMaxTokens,
	}
	if req.Model == "" {
		req.Model = DefaultAIModel
	}
	if req.Temperature <= 0 {
		req.Temperature = defaultAITemperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultAIMaxTokens
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.APIKey)

	var res chatResponse
	if err := a.client.DoJSON(ctx, http.MethodPost, a.BaseURL+"/chat/completions", h, &d.ID, req, &res); err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("ai: empty completion")
	}
	return strings.TrimSpace(res.Choices[0].Message.Content), nil
}
