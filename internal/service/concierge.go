package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pkordes/tripmate/internal/domain"
)

// ConciergeSystemPrompt frames every concierge answer.
const ConciergeSystemPrompt = "You are TripMate Concierge, a concise, helpful travel assistant. " +
	"Use only the JSON context provided, prefer user data over generic advice. " +
	"Be specific and practical, keep answers to 2 or 3 short paragraphs, or a tight list. " +
	"If restaurants are provided, recommend only from that list, include priceTier and area. " +
	"If budget is provided, convert to GBP using given rates and be money aware. " +
	"If weather is provided, reference it briefly, advise on timing if rain risk is high. " +
	"If plan data exists, avoid double booking, suggest open slots. " +
	"Respond in UK English."

// NoAnswer is returned when the model produces an empty reply.
const NoAnswer = "Sorry, no answer."

// Answerer sends one system + user prompt pair to a language model.
type Answerer interface {
	Answer(ctx context.Context, system, user string) (string, error)
}

// ConciergeService answers free-text questions about the trip using the
// snapshot the device sends with each question.
type ConciergeService struct {
	answerer Answerer
}

// NewConciergeService returns a ConciergeService. A nil answerer makes Ask
// return domain.ErrNotConfigured.
func NewConciergeService(a Answerer) *ConciergeService {
	return &ConciergeService{answerer: a}
}

// Ask answers question given the JSON snapshot tripContext.
func (s *ConciergeService) Ask(ctx context.Context, question string, tripContext json.RawMessage) (string, error) {
	if s.answerer == nil {
		return "", fmt.Errorf("service.ConciergeService.Ask: %w: no model API key", domain.ErrNotConfigured)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", domain.ErrValidation)
	}
	if len(tripContext) == 0 {
		tripContext = json.RawMessage("null")
	}

	user := "Question: " + question + "\nContext JSON: " + string(tripContext)
	answer, err := s.answerer.Answer(ctx, ConciergeSystemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("service.ConciergeService.Ask: %w", err)
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		return NoAnswer, nil
	}
	return answer, nil
}

// OpenAIURL is the chat completions endpoint.
const OpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIAnswerer calls the OpenAI chat completions API over plain HTTP.
type OpenAIAnswerer struct {
	Key    string
	URL    string
	Model  string
	Client *http.Client
}

func NewOpenAIAnswerer(key string) *OpenAIAnswerer {
	return &OpenAIAnswerer{
		Key:    key,
		URL:    OpenAIURL,
		Model:  "gpt-4o-mini",
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (a *OpenAIAnswerer) Answer(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":       a.Model,
		"temperature": 0.2,
		"max_tokens":  400,
		"messages": []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.Key)
	req.Header.Set("Content-Type", "application/json")

	status, raw, err := doRequest(a.Client, req)
	if err != nil {
		return "", err
	}
	if status/100 != 2 {
		return "", fmt.Errorf("%w: openai status %d: %s", domain.ErrUpstream, status, truncate(raw))
	}

	var body struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("%w: openai: undecodable body", domain.ErrUpstream)
	}
	if len(body.Choices) == 0 {
		return "", nil
	}
	return body.Choices[0].Message.Content, nil
}

// GeminiAnswerer answers through Google Gemini.
type GeminiAnswerer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnswerer opens a Gemini client for key. Close it on shutdown.
func NewGeminiAnswerer(ctx context.Context, key, model string) (*GeminiAnswerer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("service.NewGeminiAnswerer: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	return &GeminiAnswerer{client: client, model: model}, nil
}

func (a *GeminiAnswerer) Answer(ctx context.Context, system, user string) (string, error) {
	m := a.client.GenerativeModel(a.model)
	m.SystemInstruction = genai.NewUserContent(genai.Text(system))
	m.SetTemperature(0.2)
	m.SetMaxOutputTokens(400)

	res, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %v", domain.ErrUpstream, err)
	}
	var sb strings.Builder
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		for _, part := range res.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	return sb.String(), nil
}

// Close releases the Gemini client.
func (a *GeminiAnswerer) Close() error {
	return a.client.Close()
}
