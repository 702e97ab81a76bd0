// File: internal/analysis/analyzer.go

// Package analysis derives sentiment verdicts for scraped videos from their
// description and harvested comments, using the Gemini API.
package analysis

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/clipsight/internal/config"
	"github.com/xkilldash9x/clipsight/internal/store"
)

const analysisPrompt = `You are analyzing a short-form video post and its viewer comments.

Video description: %s
Author: %s
Search keyword: %s
Comments:
%s

Respond with exactly four lines in this format:
Topic: <what the video is about, one short phrase>
Discussion: <one sentence summarizing what commenters are saying>
Sentiment: <positive, negative, neutral or mixed>
Score: <a number from -1.0 (very negative) to 1.0 (very positive)>`

const maxCommentsPerPrompt = 30

// textGenerator is the slice of the Gemini client the analyzer uses.
// Abstracted so tests can stub model responses.
type textGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// geminiGenerator adapts the genai SDK to textGenerator.
type geminiGenerator struct {
	client *genai.Client
	cfg    config.AnalysisConfig
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.cfg.Temperature),
		MaxOutputTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned an empty response")
	}
	return text, nil
}

// Backlog is the slice of the store the batch analyzer needs.
type Backlog interface {
	UnanalyzedVideos(ctx context.Context, limit int) ([]store.VideoContent, error)
	InsertSentiment(ctx context.Context, videoID string, sent *store.Sentiment) error
}

// Analyzer produces sentiment verdicts for video content.
type Analyzer struct {
	cfg    config.AnalysisConfig
	gen    textGenerator
	logger *zap.Logger
}

// NewAnalyzer builds an analyzer backed by the Gemini API. The API key comes
// from configuration; an empty key is rejected so callers can decide to run
// without analysis instead.
func NewAnalyzer(ctx context.Context, cfg config.AnalysisConfig, logger *zap.Logger) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("analysis requires an API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Analyzer{
		cfg:    cfg,
		gen:    &geminiGenerator{client: client, cfg: cfg},
		logger: logger.Named("analysis"),
	}, nil
}

// Analyze runs one video's content through the model and parses the verdict.
func (a *Analyzer) Analyze(ctx context.Context, vc store.VideoContent) (*store.Sentiment, error) {
	comments := vc.Comments
	if len(comments) > maxCommentsPerPrompt {
		comments = comments[:maxCommentsPerPrompt]
	}
	commentBlock := "(no comments)"
	if len(comments) > 0 {
		commentBlock = "- " + strings.Join(comments, "\n- ")
	}

	prompt := fmt.Sprintf(analysisPrompt, vc.Description, vc.Author, vc.Keyword, commentBlock)

	raw, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analysis failed for video %s: %w", vc.ID, err)
	}

	sent, err := parseVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("unusable model response for video %s: %w", vc.ID, err)
	}
	sent.Model = a.cfg.Model
	sent.AnalyzedAt = time.Now().UTC()
	return sent, nil
}

// AnalyzeBacklog drains up to limit unanalyzed videos, persisting a verdict
// for each. Per-video failures are logged and do not stop the batch; the
// return value is the number of videos successfully analyzed.
func (a *Analyzer) AnalyzeBacklog(ctx context.Context, backlog Backlog, limit int) (int, error) {
	videos, err := backlog.UnanalyzedVideos(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load unanalyzed videos: %w", err)
	}
	if len(videos) == 0 {
		a.logger.Info("No videos awaiting analysis")
		return 0, nil
	}

	analyzed := 0
	for _, vc := range videos {
		if err := ctx.Err(); err != nil {
			return analyzed, err
		}

		sent, err := a.Analyze(ctx, vc)
		if err != nil {
			a.logger.Error("Skipping video after analysis failure", zap.String("video_id", vc.ID), zap.Error(err))
			continue
		}
		if err := backlog.InsertSentiment(ctx, vc.ID, sent); err != nil {
			a.logger.Error("Failed to persist sentiment", zap.String("video_id", vc.ID), zap.Error(err))
			continue
		}
		analyzed++
		a.logger.Info("Video analyzed",
			zap.String("video_id", vc.ID),
			zap.String("sentiment", sent.Verdict),
			zap.Float64("score", sent.Score))
	}
	return analyzed, nil
}

// parseVerdict extracts the four labeled lines from a model response.
// Sentiment is mandatory; the other fields degrade gracefully.
func parseVerdict(raw string) (*store.Sentiment, error) {
	sent := &store.Sentiment{}
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "Topic:"):
			sent.Topic = strings.TrimSpace(strings.TrimPrefix(line, "Topic:"))
		case strings.HasPrefix(line, "Discussion:"):
			sent.Discussion = strings.TrimSpace(strings.TrimPrefix(line, "Discussion:"))
		case strings.HasPrefix(line, "Sentiment:"):
			sent.Verdict = normalizeVerdict(strings.TrimPrefix(line, "Sentiment:"))
		case strings.HasPrefix(line, "Score:"):
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Score:")), 64); err == nil {
				sent.Score = clampScore(v)
			}
		}
	}

	if sent.Verdict == "" {
		return nil, fmt.Errorf("no sentiment line in response")
	}
	return sent, nil
}

func normalizeVerdict(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.Trim(v, ".")
	switch v {
	case "positive", "negative", "neutral", "mixed":
		return v
	}
	return ""
}

func clampScore(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
