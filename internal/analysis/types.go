// Package analysis defines core types shared across subsystems.
package analysis

import (
	"math"
	"time"
)

// Status represents the lifecycle state of an analysis job.
type Status string

// Job status values persisted in the result store. Transitions are monotonic:
// PENDING -> PROCESSING -> {COMPLETED, FAILED}.
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next preserves the monotonic
// lifecycle. A terminal job is never re-opened.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Tier is the three-valued quality rating attached to every sub-report.
type Tier string

// Supported tiers.
const (
	TierGood    Tier = "good"
	TierWarning Tier = "warning"
	TierBad     Tier = "bad"
)

// TierFor maps a 0-100 score onto the standard tier bands.
func TierFor(score int) Tier {
	switch {
	case score >= 70:
		return TierGood
	case score >= 40:
		return TierWarning
	default:
		return TierBad
	}
}

// Job represents the record persisted for each submitted analysis.
type Job struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	RuleScore   *int         `json:"ruleScore"`
	ModelScore  *int         `json:"modelScore"`
	TotalScore  *int         `json:"totalScore"`
	RuleReport  *RuleReport  `json:"ruleReport,omitempty"`
	ModelReport *ModelReport `json:"modelReport,omitempty"`
	ShareToken  string       `json:"shareToken,omitempty"`
	ErrorText   string       `json:"errorText,omitempty"`
}

// CrawlResult is the immutable output of a page fetch, consumed by both
// scorers.
type CrawlResult struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Body         []byte
	Text         string
	PageSize     int64
	Duration     time.Duration
	UsedHeadless bool
}

// HeadingStructure lists heading texts per level, in document order.
type HeadingStructure struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
	H4 []string `json:"h4"`
	H5 []string `json:"h5"`
	H6 []string `json:"h6"`
}

// Check carries the verdict for a single metadata fact.
type Check struct {
	Value   string `json:"value,omitempty"`
	Length  int    `json:"length,omitempty"`
	Tier    Tier   `json:"status"`
	Message string `json:"message"`
}

// SocialCheck reports on the social-preview tag trio.
type SocialCheck struct {
	HasTitle       bool   `json:"hasTitle"`
	HasDescription bool   `json:"hasDescription"`
	HasImage       bool   `json:"hasImage"`
	Tier           Tier   `json:"status"`
	Message        string `json:"message"`
}

// MetaReport scores metadata quality out of 40 raw points, rescaled to 100.
type MetaReport struct {
	Score       int         `json:"score"`
	Tier        Tier        `json:"status"`
	Message     string      `json:"message"`
	Title       Check       `json:"title"`
	Description Check       `json:"description"`
	Keywords    Check       `json:"keywords"`
	Social      SocialCheck `json:"social"`
	Canonical   Check       `json:"canonical"`
}

// HeaderReport scores the heading hierarchy.
type HeaderReport struct {
	Score     int              `json:"score"`
	H1Count   int              `json:"h1Count"`
	Structure HeadingStructure `json:"structure"`
	Tier      Tier             `json:"status"`
	Message   string           `json:"message"`
}

// SchemaReport scores structured-data presence.
type SchemaReport struct {
	Score     int      `json:"score"`
	HasSchema bool     `json:"hasSchema"`
	Types     []string `json:"types"`
	Tier      Tier     `json:"status"`
	Message   string   `json:"message"`
}

// PerformanceReport scores load time and page weight.
type PerformanceReport struct {
	Score         int    `json:"score"`
	LoadTimeMs    int64  `json:"loadTimeMs"`
	PageSizeBytes int64  `json:"pageSizeBytes"`
	Tier          Tier   `json:"status"`
	Message       string `json:"message"`
}

// Rule report weights. The composite is
// round(meta*0.4 + headers*0.2 + schema*0.2 + performance*0.2).
const (
	RuleWeightMeta        = 0.4
	RuleWeightHeaders     = 0.2
	RuleWeightSchema      = 0.2
	RuleWeightPerformance = 0.2
)

// RuleReport is the deterministic, fully reproducible rule score.
type RuleReport struct {
	Score       int               `json:"score"`
	Meta        MetaReport        `json:"meta"`
	Headers     HeaderReport      `json:"headers"`
	Schema      SchemaReport      `json:"schema"`
	Performance PerformanceReport `json:"performance"`
}

// CitationReport rates how likely AI engines are to cite the content.
type CitationReport struct {
	Score         int    `json:"score"`
	HasStatistics bool   `json:"hasStatistics"`
	HasSources    bool   `json:"hasSources"`
	EEATScore     int    `json:"eeatScore"`
	Tier          Tier   `json:"status"`
	Message       string `json:"message"`
	Details       string `json:"details,omitempty"`
}

// ReadabilityReport rates machine readability of the page text.
type ReadabilityReport struct {
	Score       int    `json:"score"`
	AnswerReady bool   `json:"answerReady"`
	Summary     string `json:"summary,omitempty"`
	Tier        Tier   `json:"status"`
	Message     string `json:"message"`
}

// StructureReport rates structural optimization for answer engines.
type StructureReport struct {
	Score            int    `json:"score"`
	ListUtilization  int    `json:"listUtilization"`
	TableUtilization int    `json:"tableUtilization"`
	HierarchyScore   int    `json:"hierarchyScore"`
	SnippetPotential string `json:"snippetPotential"`
	Tier             Tier   `json:"status"`
	Message          string `json:"message"`
}

// EntityReport rates brand/topic entity optimization.
type EntityReport struct {
	Score    int      `json:"score"`
	Entities []string `json:"entities"`
	Tier     Tier     `json:"status"`
	Message  string   `json:"message"`
}

// Insights carries the two free-text recommendations from the model.
type Insights struct {
	ForMarketer  string `json:"forMarketer"`
	ForDeveloper string `json:"forDeveloper"`
}

// Model report weights. The composite is
// round(citation*0.3 + readability*0.25 + structure*0.25 + entity*0.2).
const (
	ModelWeightCitation    = 0.3
	ModelWeightReadability = 0.25
	ModelWeightStructure   = 0.25
	ModelWeightEntity      = 0.2
)

// ModelReport is the model-assisted score. When the model service is
// unavailable a neutral default (all sub-scores 50) is substituted.
type ModelReport struct {
	Score       int               `json:"score"`
	Citation    CitationReport    `json:"citation"`
	Readability ReadabilityReport `json:"readability"`
	Structure   StructureReport   `json:"structure"`
	Entity      EntityReport      `json:"entity"`
	Insights    Insights          `json:"insights"`
}

// Total score weights applied when combining the two reports.
const (
	TotalWeightRule  = 0.4
	TotalWeightModel = 0.6
)

// WeightedRound aggregates weighted sub-scores with half-away-from-zero
// rounding, the convention used by every composite in the system.
func WeightedRound(pairs ...WeightedScore) int {
	var sum float64
	for _, p := range pairs {
		sum += float64(p.Score) * p.Weight
	}
	return int(math.Round(sum))
}

// WeightedScore pairs a sub-score with its weight.
type WeightedScore struct {
	Score  int
	Weight float64
}

// TotalScore combines the rule and model composites into the final score.
func TotalScore(rule, model int) int {
	return WeightedRound(
		WeightedScore{Score: rule, Weight: TotalWeightRule},
		WeightedScore{Score: model, Weight: TotalWeightModel},
	)
}
