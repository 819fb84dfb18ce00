package rules

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagescope/pagescope/internal/analysis"
)

func perfectPage(title string) string {
	desc := strings.Repeat("Useful widget guidance. ", 4) // 96 chars
	return fmt.Sprintf(`<!doctype html>
<html><head>
<title>%s</title>
<meta name="description" content="%s">
<meta name="keywords" content="widgets">
<meta property="og:title" content="t">
<meta property="og:description" content="d">
<meta property="og:image" content="i">
<link rel="canonical" href="https://example.com/">
<script type="application/ld+json">{"@type":"Article"}</script>
</head><body><h1>One</h1><h2>Sub</h2></body></html>`, title, desc)
}

func crawl(body string, dur time.Duration, size int64) analysis.CrawlResult {
	return analysis.CrawlResult{
		URL:      "https://example.com/",
		Body:     []byte(body),
		Duration: dur,
		PageSize: size,
	}
}

func TestScorePerfectPage(t *testing.T) {
	title := strings.Repeat("a", 45)
	report := New().Score(crawl(perfectPage(title), time.Second, 100*1024))

	require.Equal(t, 100, report.Meta.Score)
	require.Equal(t, 100, report.Headers.Score)
	require.Equal(t, 100, report.Schema.Score)
	require.Equal(t, 100, report.Performance.Score)
	require.Equal(t, 100, report.Score)
	require.Equal(t, analysis.TierGood, report.Meta.Tier)
}

func TestScoreEmptyPage(t *testing.T) {
	report := New().Score(crawl("<html><body></body></html>", 5*time.Second, 2<<20))

	require.Equal(t, 0, report.Meta.Score)
	require.Equal(t, 0, report.Headers.Score)
	require.Equal(t, 0, report.Schema.Score)
	require.Equal(t, 0, report.Performance.Score)
	require.Equal(t, 0, report.Score)
	require.Equal(t, analysis.TierBad, report.Performance.Tier)
}

func TestScoreTitleBoundaries(t *testing.T) {
	cases := []struct {
		length int
		tier   analysis.Tier
	}{
		{29, analysis.TierWarning},
		{30, analysis.TierGood},
		{60, analysis.TierGood},
		{61, analysis.TierWarning},
	}
	for _, tc := range cases {
		report := New().Score(crawl(perfectPage(strings.Repeat("x", tc.length)), time.Second, 1024))
		require.Equal(t, tc.tier, report.Meta.Title.Tier, "title length %d", tc.length)
		require.Equal(t, tc.length, report.Meta.Title.Length)
	}
}

func TestScoreMultipleH1(t *testing.T) {
	body := "<html><body><h1>One</h1><h1>Two</h1></body></html>"
	report := New().Score(crawl(body, time.Second, 1024))

	require.Equal(t, 2, report.Headers.H1Count)
	require.Equal(t, 50, report.Headers.Score)
	require.Equal(t, analysis.TierWarning, report.Headers.Tier)
}

func TestScoreSingleH1WithoutSubheadings(t *testing.T) {
	body := "<html><body><h1>Only</h1><p>text</p></body></html>"
	report := New().Score(crawl(body, time.Second, 1024))

	require.Equal(t, 75, report.Headers.Score)
	require.Equal(t, analysis.TierGood, report.Headers.Tier)
}

func TestScorePerformanceTiers(t *testing.T) {
	cases := []struct {
		dur   time.Duration
		size  int64
		score int
		tier  analysis.Tier
	}{
		{time.Second, 100 * 1024, 100, analysis.TierGood},
		{3 * time.Second, 100 * 1024, 75, analysis.TierGood},
		{3 * time.Second, 600 * 1024, 50, analysis.TierWarning},
		{5 * time.Second, 600 * 1024, 25, analysis.TierBad},
		{5 * time.Second, 2 << 20, 0, analysis.TierBad},
	}
	for _, tc := range cases {
		report := New().Score(crawl("<html></html>", tc.dur, tc.size))
		require.Equal(t, tc.score, report.Performance.Score, "%v %dB", tc.dur, tc.size)
		require.Equal(t, tc.tier, report.Performance.Tier, "%v %dB", tc.dur, tc.size)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	res := crawl(perfectPage(strings.Repeat("a", 40)), 1500*time.Millisecond, 300*1024)
	first := New().Score(res)
	second := New().Score(res)
	require.Equal(t, first, second)
}

func TestScoreCompositeWeights(t *testing.T) {
	// Meta 100, headers 50, schema 0, performance 100.
	body := `<!doctype html><html><head>
<title>` + strings.Repeat("a", 40) + `</title>
<meta name="description" content="` + strings.Repeat("d", 100) + `">
<meta name="keywords" content="k">
<meta property="og:title" content="t">
<meta property="og:description" content="d">
<meta property="og:image" content="i">
<link rel="canonical" href="https://example.com/">
</head><body><h1>A</h1><h1>B</h1></body></html>`
	report := New().Score(crawl(body, time.Second, 1024))

	require.Equal(t, 100, report.Meta.Score)
	require.Equal(t, 50, report.Headers.Score)
	require.Equal(t, 0, report.Schema.Score)
	require.Equal(t, 100, report.Performance.Score)
	// 100*0.4 + 50*0.2 + 0*0.2 + 100*0.2 = 70
	require.Equal(t, 70, report.Score)
}
