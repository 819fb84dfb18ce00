// Package rules implements the deterministic rule scorer. Scoring is a pure
// function of the crawl result: the same page bytes and timings always
// produce the same report.
package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/extract"
)

const (
	metaMaxScore        = 40
	headersMaxScore     = 20
	schemaMaxScore      = 20
	performanceMaxScore = 20
)

// Scorer satisfies analysis.RuleScorer.
type Scorer struct{}

// New returns a rule scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score analyzes the crawled page and returns the full rule report.
// A parse failure degrades to scoring an empty document rather than
// failing the job.
func (s *Scorer) Score(res analysis.CrawlResult) analysis.RuleReport {
	doc, err := extract.Parse(res.Body)
	if err != nil {
		doc, _ = extract.Parse(nil)
	}

	meta := scoreMeta(extract.PageMeta(doc))
	headers := scoreHeaders(extract.Headings(doc))
	schema := scoreSchema(extract.SchemaBlocks(doc))
	perf := scorePerformance(res.Duration.Milliseconds(), res.PageSize)

	return analysis.RuleReport{
		Score: analysis.WeightedRound(
			analysis.WeightedScore{Score: meta.Score, Weight: analysis.RuleWeightMeta},
			analysis.WeightedScore{Score: headers.Score, Weight: analysis.RuleWeightHeaders},
			analysis.WeightedScore{Score: schema.Score, Weight: analysis.RuleWeightSchema},
			analysis.WeightedScore{Score: perf.Score, Weight: analysis.RuleWeightPerformance},
		),
		Meta:        meta,
		Headers:     headers,
		Schema:      schema,
		Performance: perf,
	}
}

func scoreMeta(meta extract.Meta) analysis.MetaReport {
	var raw int

	// Title, 10 points. Full credit between 30 and 60 characters.
	title := analysis.Check{Value: meta.Title, Tier: analysis.TierBad}
	titleLen := utf8.RuneCountInString(strings.TrimSpace(meta.Title))
	title.Length = titleLen
	switch {
	case titleLen == 0:
		title.Message = "Missing title tag."
	case titleLen < 30:
		title.Tier = analysis.TierWarning
		title.Message = fmt.Sprintf("Title is too short (%d chars). 30-60 recommended.", titleLen)
		raw += 5
	case titleLen > 60:
		title.Tier = analysis.TierWarning
		title.Message = fmt.Sprintf("Title is too long (%d chars). 30-60 recommended.", titleLen)
		raw += 5
	default:
		title.Tier = analysis.TierGood
		title.Message = fmt.Sprintf("Title length is appropriate (%d chars).", titleLen)
		raw += 10
	}

	// Description, 10 points. Full credit between 70 and 160 characters.
	desc := analysis.Check{Value: meta.Description, Tier: analysis.TierBad}
	descLen := utf8.RuneCountInString(meta.Description)
	desc.Length = descLen
	switch {
	case descLen == 0:
		desc.Message = "Missing meta description."
	case descLen < 70:
		desc.Tier = analysis.TierWarning
		desc.Message = fmt.Sprintf("Description is too short (%d chars). 70-160 recommended.", descLen)
		raw += 5
	case descLen > 160:
		desc.Tier = analysis.TierWarning
		desc.Message = fmt.Sprintf("Description is too long (%d chars). 70-160 recommended.", descLen)
		raw += 5
	default:
		desc.Tier = analysis.TierGood
		desc.Message = fmt.Sprintf("Description length is appropriate (%d chars).", descLen)
		raw += 10
	}

	// Keywords, 5 points. Absence is only a warning.
	keywords := analysis.Check{Value: meta.Keywords, Tier: analysis.TierWarning}
	if meta.Keywords != "" {
		keywords.Tier = analysis.TierGood
		keywords.Message = "Keywords meta tag is present."
		raw += 5
	} else {
		keywords.Message = "Keywords meta tag is missing (optional)."
	}

	// Social preview tags, 10 points. All three for full credit.
	social := analysis.SocialCheck{
		HasTitle:       meta.OGTitle != "",
		HasDescription: meta.OGDescription != "",
		HasImage:       meta.OGImage != "",
		Tier:           analysis.TierBad,
	}
	ogCount := 0
	for _, present := range []bool{social.HasTitle, social.HasDescription, social.HasImage} {
		if present {
			ogCount++
		}
	}
	switch {
	case ogCount == 3:
		social.Tier = analysis.TierGood
		social.Message = "All Open Graph tags are set."
		raw += 10
	case ogCount > 0:
		social.Tier = analysis.TierWarning
		social.Message = fmt.Sprintf("Some Open Graph tags are missing (%d/3).", ogCount)
		raw += 5
	default:
		social.Message = "No Open Graph tags. Social sharing previews will be poor."
	}

	// Canonical, 5 points. Absence is only a warning.
	canonical := analysis.Check{Value: meta.Canonical, Tier: analysis.TierWarning}
	if meta.Canonical != "" {
		canonical.Tier = analysis.TierGood
		canonical.Message = "Canonical URL is set."
		raw += 5
	} else {
		canonical.Message = "Canonical URL is missing."
	}

	score := rescale(raw, metaMaxScore)
	return analysis.MetaReport{
		Score:       score,
		Tier:        analysis.TierFor(score),
		Message:     metaSummary(analysis.TierFor(score)),
		Title:       title,
		Description: desc,
		Keywords:    keywords,
		Social:      social,
		Canonical:   canonical,
	}
}

func metaSummary(tier analysis.Tier) string {
	switch tier {
	case analysis.TierGood:
		return "Page metadata is in good shape."
	case analysis.TierWarning:
		return "Page metadata needs some attention."
	default:
		return "Page metadata is largely missing."
	}
}

func scoreHeaders(structure analysis.HeadingStructure) analysis.HeaderReport {
	var raw int
	h1Count := len(structure.H1)

	report := analysis.HeaderReport{
		H1Count:   h1Count,
		Structure: structure,
		Tier:      analysis.TierBad,
	}

	switch {
	case h1Count == 0:
		report.Message = "No H1 tag found. The page needs exactly one H1."
	case h1Count == 1:
		report.Tier = analysis.TierGood
		report.Message = "H1 tag is used correctly."
		raw += 15
		if len(structure.H2) > 0 {
			raw += 5
		}
	default:
		report.Tier = analysis.TierWarning
		report.Message = fmt.Sprintf("Found %d H1 tags. Use exactly one.", h1Count)
		raw += 10
	}

	report.Score = rescale(raw, headersMaxScore)
	return report
}

func scoreSchema(schema extract.Schema) analysis.SchemaReport {
	report := analysis.SchemaReport{
		HasSchema: len(schema.Blocks) > 0,
		Types:     schema.Types,
		Tier:      analysis.TierBad,
	}

	if report.HasSchema {
		report.Tier = analysis.TierGood
		report.Message = "Structured data found: " + strings.Join(schema.Types, ", ")
		report.Score = rescale(schemaMaxScore, schemaMaxScore)
	} else {
		report.Message = "No structured data (JSON-LD). Adding schema markup is recommended."
	}
	return report
}

func scorePerformance(loadTimeMs, pageSize int64) analysis.PerformanceReport {
	var raw int

	// Load time, 10 points. Good under 2s, acceptable under 4s.
	switch {
	case loadTimeMs < 2000:
		raw += 10
	case loadTimeMs < 4000:
		raw += 5
	}

	// Page weight, 10 points. Good under 500KB, acceptable under 1MB.
	pageSizeKB := float64(pageSize) / 1024
	switch {
	case pageSizeKB < 500:
		raw += 10
	case pageSizeKB < 1024:
		raw += 5
	}

	report := analysis.PerformanceReport{
		LoadTimeMs:    loadTimeMs,
		PageSizeBytes: pageSize,
		Tier:          analysis.TierBad,
	}
	stats := fmt.Sprintf("%.1fs, %.0fKB", float64(loadTimeMs)/1000, pageSizeKB)
	switch {
	case raw >= 15:
		report.Tier = analysis.TierGood
		report.Message = fmt.Sprintf("Load time and page size look healthy (%s).", stats)
	case raw >= 10:
		report.Tier = analysis.TierWarning
		report.Message = fmt.Sprintf("Performance could be improved (%s).", stats)
	default:
		report.Message = fmt.Sprintf("Performance is poor (%s). Optimization needed.", stats)
	}

	report.Score = rescale(raw, performanceMaxScore)
	return report
}

// rescale maps raw points onto the 0-100 range.
func rescale(raw, max int) int {
	return analysis.WeightedRound(analysis.WeightedScore{Score: raw, Weight: 100.0 / float64(max)})
}
