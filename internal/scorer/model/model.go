// Package model implements the model-assisted scorer. It asks a completion
// client to rate the page text and normalizes the reply into a report.
// Scoring never fails: any client or parse error degrades to a neutral
// report with every sub-score at 50.
package model

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/llm"
)

const systemPrompt = "You are an SEO and AI-search optimization expert. You analyze web " +
	"content and rate its visibility to AI answer engines such as ChatGPT and " +
	"Perplexity. Always respond with valid JSON only."

const userPromptFormat = `Analyze the following web page content for AI search engine optimization.
If the content uses markdown-like structure, factor list (*) and table (|) usage into the analysis.

URL: %s

Content:
%s

Return the analysis as JSON in exactly this shape:

{
  "citationReliability": {
    "score": 0-100,
    "hasStatistics": true/false,
    "hasSources": true/false,
    "eeatScore": 0-100,
    "details": "citation reliability findings"
  },
  "llmReadability": {
    "score": 0-100,
    "isAnswerReady": true/false,
    "summary": "short summary of the page"
  },
  "structuralOptimization": {
    "score": 0-100,
    "listUtilization": 0-100,
    "tableUtilization": 0-100,
    "hierarchyScore": 0-100,
    "snippetPotential": "High/Medium/Low"
  },
  "entityOptimization": {
    "score": 0-100,
    "entities": ["entity1", "entity2"]
  },
  "actionableInsights": {
    "forMarketer": "marketing-facing improvement guidance",
    "forDeveloper": "technical (schema, tags) improvement guidance"
  }
}

Return only the JSON, no other text.`

// rawResponse mirrors the JSON shape requested from the model.
type rawResponse struct {
	CitationReliability struct {
		Score         int    `json:"score"`
		HasStatistics bool   `json:"hasStatistics"`
		HasSources    bool   `json:"hasSources"`
		EEATScore     int    `json:"eeatScore"`
		Details       string `json:"details"`
	} `json:"citationReliability"`
	LLMReadability struct {
		Score         int    `json:"score"`
		IsAnswerReady bool   `json:"isAnswerReady"`
		Summary       string `json:"summary"`
	} `json:"llmReadability"`
	StructuralOptimization struct {
		Score            int    `json:"score"`
		ListUtilization  int    `json:"listUtilization"`
		TableUtilization int    `json:"tableUtilization"`
		HierarchyScore   int    `json:"hierarchyScore"`
		SnippetPotential string `json:"snippetPotential"`
	} `json:"structuralOptimization"`
	EntityOptimization struct {
		Score    int      `json:"score"`
		Entities []string `json:"entities"`
	} `json:"entityOptimization"`
	ActionableInsights struct {
		ForMarketer  string `json:"forMarketer"`
		ForDeveloper string `json:"forDeveloper"`
	} `json:"actionableInsights"`
}

// Scorer satisfies analysis.ModelScorer.
type Scorer struct {
	client   llm.Client
	maxChars int
	logger   *zap.Logger
}

// New builds a model scorer. maxChars bounds the amount of page text sent
// to the client.
func New(client llm.Client, maxChars int, logger *zap.Logger) *Scorer {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Scorer{client: client, maxChars: maxChars, logger: logger}
}

// Score rates the crawled page. It always returns a usable report.
func (s *Scorer) Score(ctx context.Context, res analysis.CrawlResult) analysis.ModelReport {
	raw, err := s.ask(ctx, res)
	if err != nil {
		s.logger.Warn("model analysis unavailable, using neutral scores",
			zap.String("url", res.URL),
			zap.Error(err))
		raw = neutralResponse()
	}
	return buildReport(raw)
}

func (s *Scorer) ask(ctx context.Context, res analysis.CrawlResult) (rawResponse, error) {
	var raw rawResponse
	user := fmt.Sprintf(userPromptFormat, res.URL, truncate(res.Text, s.maxChars))
	reply, err := s.client.Complete(ctx, systemPrompt, user)
	if err != nil {
		return raw, err
	}
	payload, ok := firstJSONObject(reply)
	if !ok {
		return raw, fmt.Errorf("no JSON object in model reply")
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return raw, fmt.Errorf("model reply parse: %w", err)
	}
	return raw, nil
}

// truncate bounds text by rune count, marking the cut with an ellipsis.
func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}

// firstJSONObject extracts the first balanced top-level JSON object from
// text, skipping braces inside string literals.
func firstJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func neutralResponse() rawResponse {
	var raw rawResponse
	raw.CitationReliability.Score = 50
	raw.CitationReliability.EEATScore = 50
	raw.CitationReliability.Details = "Model analysis could not be performed."
	raw.LLMReadability.Score = 50
	raw.LLMReadability.Summary = "A content summary could not be generated."
	raw.StructuralOptimization.Score = 50
	raw.StructuralOptimization.ListUtilization = 50
	raw.StructuralOptimization.TableUtilization = 50
	raw.StructuralOptimization.HierarchyScore = 50
	raw.StructuralOptimization.SnippetPotential = "Medium"
	raw.EntityOptimization.Score = 50
	raw.ActionableInsights.ForMarketer = "Analysis could not be performed."
	raw.ActionableInsights.ForDeveloper = "Analysis could not be performed."
	return raw
}

func buildReport(raw rawResponse) analysis.ModelReport {
	citation := clamp(raw.CitationReliability.Score)
	readability := clamp(raw.LLMReadability.Score)
	structure := clamp(raw.StructuralOptimization.Score)
	entity := clamp(raw.EntityOptimization.Score)

	return analysis.ModelReport{
		Score: analysis.WeightedRound(
			analysis.WeightedScore{Score: citation, Weight: analysis.ModelWeightCitation},
			analysis.WeightedScore{Score: readability, Weight: analysis.ModelWeightReadability},
			analysis.WeightedScore{Score: structure, Weight: analysis.ModelWeightStructure},
			analysis.WeightedScore{Score: entity, Weight: analysis.ModelWeightEntity},
		),
		Citation: analysis.CitationReport{
			Score:         citation,
			HasStatistics: raw.CitationReliability.HasStatistics,
			HasSources:    raw.CitationReliability.HasSources,
			EEATScore:     clamp(raw.CitationReliability.EEATScore),
			Tier:          analysis.TierFor(citation),
			Message:       citationMessage(citation),
			Details:       raw.CitationReliability.Details,
		},
		Readability: analysis.ReadabilityReport{
			Score:       readability,
			AnswerReady: raw.LLMReadability.IsAnswerReady,
			Summary:     raw.LLMReadability.Summary,
			Tier:        analysis.TierFor(readability),
			Message:     readabilityMessage(readability),
		},
		Structure: analysis.StructureReport{
			Score:            structure,
			ListUtilization:  clamp(raw.StructuralOptimization.ListUtilization),
			TableUtilization: clamp(raw.StructuralOptimization.TableUtilization),
			HierarchyScore:   clamp(raw.StructuralOptimization.HierarchyScore),
			SnippetPotential: snippetPotential(raw.StructuralOptimization.SnippetPotential),
			Tier:             analysis.TierFor(structure),
			Message:          structureMessage(structure),
		},
		Entity: analysis.EntityReport{
			Score:    entity,
			Entities: raw.EntityOptimization.Entities,
			Tier:     analysis.TierFor(entity),
			Message:  entityMessage(entity),
		},
		Insights: analysis.Insights{
			ForMarketer:  raw.ActionableInsights.ForMarketer,
			ForDeveloper: raw.ActionableInsights.ForDeveloper,
		},
	}
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

func snippetPotential(value string) string {
	switch value {
	case "High", "Medium", "Low":
		return value
	default:
		return "Medium"
	}
}

func citationMessage(score int) string {
	switch analysis.TierFor(score) {
	case analysis.TierGood:
		return "AI engines are likely to cite this content as a source."
	case analysis.TierWarning:
		return "Citation likelihood is moderate. Adding statistics or sources is recommended."
	default:
		return "Citation likelihood is low. Add credible data and sources."
	}
}

func readabilityMessage(score int) string {
	switch analysis.TierFor(score) {
	case analysis.TierGood:
		return "The content is easy for AI engines to understand and summarize."
	case analysis.TierWarning:
		return "Readability is moderate. Write clearer, more direct sentences."
	default:
		return "The content is hard for AI engines to parse. Restructure it."
	}
}

func structureMessage(score int) string {
	switch analysis.TierFor(score) {
	case analysis.TierGood:
		return "The content structure is well optimized for AI search."
	case analysis.TierWarning:
		return "Structure needs improvement. Use lists and tables."
	default:
		return "The content lacks structure. Add hierarchy and lists."
	}
}

func entityMessage(score int) string {
	switch analysis.TierFor(score) {
	case analysis.TierGood:
		return "The brand and topic are clearly connected."
	case analysis.TierWarning:
		return "Entity optimization is moderate. Reinforce brand mentions."
	default:
		return "The brand-topic connection is weak. Entity optimization is needed."
	}
}
