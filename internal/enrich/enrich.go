// Package enrich derives summaries, tags and reading metadata for bookmarks
// from a language model.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/model"
)

// Result is one bookmark's enrichment payload.
type Result struct {
	Summary              string   `json:"summary"`
	Sentiment            string   `json:"sentiment"`
	Tags                 []string `json:"tags"`
	KeyTopics            []string `json:"keyTopics"`
	SuggestedCollections []string `json:"suggestedCollections"`
	Difficulty           string   `json:"difficulty"`
	EstimatedReadTime    int      `json:"estimatedReadTime"`
}

// Enricher analyzes a single bookmark.
type Enricher interface {
	Analyze(ctx context.Context, b model.Bookmark) (Result, error)
}

const systemPrompt = `You analyze saved social media bookmarks.
Respond with a single JSON object and nothing else, using exactly these keys:
summary (string, one sentence), sentiment (positive|negative|neutral),
tags (array of up to 5 lowercase strings), keyTopics (array of strings),
suggestedCollections (array of up to 3 strings),
difficulty (easy|medium|hard), estimatedReadTime (integer minutes).`

// Claude is the Anthropic-backed enricher.
type Claude struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaude constructs an enricher talking to the Anthropic API.
func NewClaude(apiKey string, mdl string) *Claude {
	return &Claude{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(mdl),
	}
}

// Analyze sends the bookmark's text and parses the structured reply.
func (c *Claude) Analyze(ctx context.Context, b model.Bookmark) (Result, error) {
	text := strings.TrimSpace(b.Content)
	if text == "" {
		text = b.URL
	}
	if text == "" {
		return Result{}, fmt.Errorf("bookmark %s has nothing to analyze: %w", b.ExternalID, errs.ErrValidation)
	}

	prompt := fmt.Sprintf("Author: %s\nURL: %s\n\n%s", b.Author, b.URL, text)
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("model call: %w: %w", errs.ErrUnavailable, err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return parseResult(reply.String())
}

// parseResult extracts the JSON object from a model reply, tolerating code
// fences and stray prose around it.
func parseResult(reply string) (Result, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("reply carries no JSON object")
	}
	var res Result
	if err := json.Unmarshal([]byte(reply[start:end+1]), &res); err != nil {
		return Result{}, fmt.Errorf("decode enrichment: %w", err)
	}
	res.Sentiment = normalizeSentiment(res.Sentiment)
	return res, nil
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(model.SentimentPositive):
		return string(model.SentimentPositive)
	case string(model.SentimentNegative):
		return string(model.SentimentNegative)
	default:
		return string(model.SentimentNeutral)
	}
}

// Apply merges an enrichment result into the store's bookmark. Model-derived
// tags land in SuggestedTags; they only join Tags once the user accepts them.
func Apply(s model.Store, externalID string, r Result) model.Store {
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ExternalID != externalID {
			continue
		}
		b := &s.Bookmarks[i]
		b.Summary = r.Summary
		b.Sentiment = model.Sentiment(r.Sentiment)
		b.AITags = append([]string(nil), r.Tags...)
		for _, tag := range r.Tags {
			if !containsString(b.Tags, tag) && !containsString(b.SuggestedTags, tag) {
				b.SuggestedTags = append(b.SuggestedTags, tag)
			}
		}
		b.Analysis = &model.Analysis{
			Summary:              r.Summary,
			KeyTopics:            append([]string(nil), r.KeyTopics...),
			SuggestedCollections: append([]string(nil), r.SuggestedCollections...),
			Difficulty:           r.Difficulty,
			EstimatedReadTime:    r.EstimatedReadTime,
		}
		if r.EstimatedReadTime > 0 {
			b.ReadingTime = r.EstimatedReadTime
		}
	}
	return s
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
