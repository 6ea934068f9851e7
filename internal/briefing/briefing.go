// Package briefing turns a set of route predictions into a short written
// shift briefing for gritting crews using an OpenAI chat model.
package briefing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/gritting/internal/models"
)

// ErrNotConfigured is returned by New when no API key is available.
var ErrNotConfigured = errors.New("briefing not configured")

const DefaultModel = openai.ChatModelGPT4oMini

const systemPrompt = `You are the winter maintenance duty officer for a city road network.
Write a short briefing for the gritting crews based on the route predictions provided.
Lead with the routes that need treatment, highest priority first, and mention salt totals.
Mention routes that need no treatment only as a count. Use plain British English, no markdown headings, at most 150 words.`

type Generator struct {
	client openai.Client
	model  openai.ChatModel
	logger *slog.Logger
}

// New creates a briefing generator. Extra request options are passed to
// the OpenAI client.
func New(apiKey string, logger *slog.Logger, opts ...option.RequestOption) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Generator{
		client: openai.NewClient(opts...),
		model:  DefaultModel,
		logger: logger,
	}, nil
}

// Generate writes a briefing covering preds.
func (g *Generator) Generate(ctx context.Context, preds []models.PredictionResult) (string, error) {
	if len(preds) == 0 {
		return "", errors.New("no predictions to brief")
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Summary(preds)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no briefing returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty briefing returned")
	}
	g.logger.Info("briefing: generated", "routes", len(preds), "chars", len(text))
	return text, nil
}

// Summary renders predictions as the plain-text table sent to the model.
// Gritting routes come first, then by route id.
func Summary(preds []models.PredictionResult) string {
	sorted := make([]models.PredictionResult, len(preds))
	copy(sorted, preds)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Gritting() != sorted[j].Gritting() {
			return sorted[i].Gritting()
		}
		return sorted[i].RouteID < sorted[j].RouteID
	})

	var b strings.Builder
	total := 0
	for _, p := range sorted {
		fmt.Fprintf(&b, "%s %s: grit=%s confidence=%.2f salt_kg=%d ice=%s snow=%s note=%q\n",
			p.RouteID, p.RouteName, p.GrittingDecision, p.DecisionConfidence,
			p.SaltAmountKg, p.IceRisk, p.SnowRisk, p.Recommendation)
		total += p.SaltAmountKg
	}
	fmt.Fprintf(&b, "Total salt: %d kg across %d routes\n", total, len(sorted))
	return b.String()
}
