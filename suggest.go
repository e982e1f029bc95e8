package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SuggestionRequest carries the still-hidden words, partitioned by tile type
// from the requesting spymaster's perspective.
type SuggestionRequest struct {
	Words          []string
	OpponentWords  []string
	BystanderWords []string
	AssassinWord   string
}

type ClueSuggestion struct {
	Message string `json:"message"`
}

// Suggester is the boundary to the external clue-generation collaborator.
type Suggester interface {
	Suggest(ctx context.Context, req SuggestionRequest) (*ClueSuggestion, error)
}

const suggestionSystemPrompt = "You are an expert spymaster in a word-association party game. " +
	"Given the words belonging to your team, the opponent's words, the bystander words, " +
	"and the assassin word, suggest a single one-word clue and a number. The clue must " +
	"relate to as many of your team's words as possible while avoiding any association " +
	"with the opponent's words, the bystanders, and especially the assassin."

// chatSuggester asks an OpenAI-compatible chat-completions endpoint for a
// clue.
type chatSuggester struct {
	url    string
	key    string
	model  string
	client *http.Client
}

func newChatSuggester(cfg *Config) *chatSuggester {
	if cfg.suggestionURL == "" {
		return nil
	}

	return &chatSuggester{
		url:   cfg.suggestionURL,
		key:   cfg.suggestionKey,
		model: cfg.suggestionModel,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *chatSuggester) Suggest(ctx context.Context, req SuggestionRequest) (*ClueSuggestion, error) {
	prompt := fmt.Sprintf(`Game Board State:
Your Team's Words: %s
Opponent's Words: %s
Bystander Words: %s
Assassin Word: %s

Respond with your best clue.`,
		strings.Join(req.Words, ", "),
		strings.Join(req.OpponentWords, ", "),
		strings.Join(req.BystanderWords, ", "),
		req.AssassinWord,
	)

	payload, err := json.Marshal(map[string]any{
		"model":       s.model,
		"temperature": 0.7,
		"messages": []map[string]string{
			{"role": "system", "content": suggestionSystemPrompt},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.key)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: suggestion backend returned %s", ErrUpstream, resp.Status)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var message string
	if len(parsed.Choices) > 0 {
		message = parsed.Choices[0].Message.Content
	}

	log.Debug().Str("model", s.model).Str("message", message).Msg("Clue suggestion received")

	return &ClueSuggestion{Message: message}, nil
}
