// Package generator produces candidate tweet variants with an LLM and
// ranks them by predicted engagement, which is the product's "optimize"
// flow: draft a tweet, generate variants, keep the ones forecast to
// perform best.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/adolic/tweet-optimized/internal/ensemble"
)

const (
	openAIModel          = openai.GPT4o
	openAIRequestTimeout = 60 * time.Second
	maxCompletionTokens  = 2048
)

const systemPrompt = `
You are assistant in generating viral tweets for the user. User comes up with one or more tweets and you will try to generate similar sounding (not exact) variants of them. Output 10 variations in following format:
<tweets>
<tweet>first tweet</tweet>
...
<tweet>tenth tweet</tweet>
</tweets>
Do not output any other format or text, strictly above output.
`

var tweetTagRe = regexp.MustCompile(`(?s)<tweet>(.*?)</tweet>`)

// Generator turns seed tweets into variant candidates via a chat
// completion.
type Generator struct {
	client *openai.Client
}

func New(apiKey string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generator: missing OpenAI API key")
	}
	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = &http.Client{Timeout: openAIRequestTimeout}
	return &Generator{client: openai.NewClientWithConfig(config)}, nil
}

// Generate asks the model for ~10 variants playing on the seeds' theme.
func (g *Generator) Generate(ctx context.Context, seeds []string) ([]string, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("generator: no seed tweets supplied")
	}

	var seedBlock string
	for _, seed := range seeds {
		seedBlock += fmt.Sprintf("<tweet>%s</tweet>\n", seed)
	}
	userPrompt := fmt.Sprintf(
		"Here is the list of tweets:\n%s\nNow generate 10 more variants that play on the same theme in the define format:", seedBlock)

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     openAIModel,
		MaxTokens: maxCompletionTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generator: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generator: chat completion returned no choices")
	}

	variants := ParseTweets(resp.Choices[0].Message.Content)
	if len(variants) == 0 {
		return nil, fmt.Errorf("generator: no <tweet> blocks in completion")
	}

	slog.Info("[Generator] Variants generated",
		slog.Int("seeds", len(seeds)),
		slog.Int("variants", len(variants)),
		slog.Duration("elapsed", time.Since(start)))
	return variants, nil
}

// ParseTweets extracts the <tweet>...</tweet> blocks from a completion.
func ParseTweets(content string) []string {
	matches := tweetTagRe.FindAllStringSubmatch(content, -1)
	tweets := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] != "" {
			tweets = append(tweets, m[1])
		}
	}
	return tweets
}

// RankedTweet is a candidate scored by its forecast views at the
// reference horizon.
type RankedTweet struct {
	Text           string  `json:"text"`
	PredictedViews float64 `json:"predicted_views"`
}

// Rank forecasts every candidate for the given author profile and sorts
// best first by predicted views at the last supplied horizon.
func Rank(ctx context.Context, ens *ensemble.Ensemble, candidates []string, followers int64, verified bool, ageHours []float64) ([]RankedTweet, error) {
	reqs := make([]ensemble.PredictionRequest, len(candidates))
	for i, text := range candidates {
		reqs[i] = ensemble.PredictionRequest{
			Text:                 text,
			AuthorFollowersCount: followers,
			IsBlueVerified:       verified,
		}
	}

	bulk, err := ens.PredictBulk(ctx, reqs, ageHours)
	if err != nil {
		return nil, fmt.Errorf("generator: ranking candidates: %w", err)
	}

	ranked := make([]RankedTweet, len(bulk))
	for i, b := range bulk {
		curve := b.Predictions[ensemble.MetricViews]
		ranked[i] = RankedTweet{
			Text:           b.Text,
			PredictedViews: curve[len(curve)-1],
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PredictedViews > ranked[j].PredictedViews
	})
	return ranked, nil
}
