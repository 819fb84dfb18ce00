package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
)

type fakeClient struct {
	reply    string
	err      error
	lastUser string
}

func (f *fakeClient) Complete(_ context.Context, _ string, user string) (string, error) {
	f.lastUser = user
	return f.reply, f.err
}

const goodReply = `Here is the analysis you asked for:
{
  "citationReliability": {"score": 80, "hasStatistics": true, "hasSources": true, "eeatScore": 75, "details": "Citations look {solid}."},
  "llmReadability": {"score": 90, "isAnswerReady": true, "summary": "A widget guide."},
  "structuralOptimization": {"score": 70, "listUtilization": 60, "tableUtilization": 40, "hierarchyScore": 85, "snippetPotential": "High"},
  "entityOptimization": {"score": 65, "entities": ["Widgets Inc"]},
  "actionableInsights": {"forMarketer": "Add case studies.", "forDeveloper": "Add FAQ schema."}
}
Hope that helps.`

func TestScoreParsesReplyWithSurroundingProse(t *testing.T) {
	client := &fakeClient{reply: goodReply}
	scorer := New(client, 8000, zap.NewNop())

	report := scorer.Score(context.Background(), analysis.CrawlResult{URL: "https://example.com", Text: "body text"})

	// 80*0.3 + 90*0.25 + 70*0.25 + 65*0.2 = 77
	require.Equal(t, 77, report.Score)
	require.Equal(t, analysis.TierGood, report.Citation.Tier)
	require.True(t, report.Citation.HasStatistics)
	require.Equal(t, "High", report.Structure.SnippetPotential)
	require.Equal(t, []string{"Widgets Inc"}, report.Entity.Entities)
	require.Equal(t, "Add FAQ schema.", report.Insights.ForDeveloper)
	require.Equal(t, "AI engines are likely to cite this content as a source.", report.Citation.Message)
}

func TestScoreNeutralFallbackOnClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	scorer := New(client, 8000, zap.NewNop())

	report := scorer.Score(context.Background(), analysis.CrawlResult{URL: "https://example.com"})

	require.Equal(t, 50, report.Score)
	require.Equal(t, 50, report.Citation.Score)
	require.Equal(t, analysis.TierWarning, report.Citation.Tier)
	require.Equal(t, "Medium", report.Structure.SnippetPotential)
	require.False(t, report.Readability.AnswerReady)
}

func TestScoreNeutralFallbackOnUnparseableReply(t *testing.T) {
	client := &fakeClient{reply: "sorry, I cannot help with that"}
	scorer := New(client, 8000, zap.NewNop())

	report := scorer.Score(context.Background(), analysis.CrawlResult{URL: "https://example.com"})
	require.Equal(t, 50, report.Score)
}

func TestScoreClampsOutOfRangeValues(t *testing.T) {
	client := &fakeClient{reply: `{
  "citationReliability": {"score": 150, "eeatScore": -10},
  "llmReadability": {"score": -5},
  "structuralOptimization": {"score": 100, "snippetPotential": "Extreme"},
  "entityOptimization": {"score": 100}
}`}
	scorer := New(client, 8000, zap.NewNop())

	report := scorer.Score(context.Background(), analysis.CrawlResult{URL: "https://example.com"})

	require.Equal(t, 100, report.Citation.Score)
	require.Equal(t, 0, report.Citation.EEATScore)
	require.Equal(t, 0, report.Readability.Score)
	require.Equal(t, "Medium", report.Structure.SnippetPotential)
}

func TestScoreTruncatesLongText(t *testing.T) {
	client := &fakeClient{reply: goodReply}
	scorer := New(client, 100, zap.NewNop())

	long := strings.Repeat("a", 500)
	scorer.Score(context.Background(), analysis.CrawlResult{URL: "https://example.com", Text: long})

	require.Contains(t, client.lastUser, strings.Repeat("a", 100)+"...")
	require.NotContains(t, client.lastUser, strings.Repeat("a", 101))
}

func TestFirstJSONObject(t *testing.T) {
	payload, ok := firstJSONObject(`noise {"a": "brace } in string", "b": {"c": 1}} trailing`)
	require.True(t, ok)
	require.Equal(t, `{"a": "brace } in string", "b": {"c": 1}}`, payload)

	_, ok = firstJSONObject("no object here")
	require.False(t, ok)

	_, ok = firstJSONObject(`{"unterminated": true`)
	require.False(t, ok)
}
