// Package extract provides pure HTML fact-extraction helpers built on
// goquery. All functions tolerate malformed markup; bad fragments are
// skipped, never surfaced as errors.
package extract

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Meta captures the page metadata relevant to scoring.
type Meta struct {
	Title         string
	Description   string
	Keywords      string
	OGTitle       string
	OGDescription string
	OGImage       string
	Canonical     string
}

// Schema holds de-duplicated structured-data types plus the raw parsed
// payloads.
type Schema struct {
	Types  []string
	Blocks []any
}

// Links separates anchors by host relative to the page URL.
type Links struct {
	Internal []string
	External []string
}

// Parse builds a goquery document from raw markup.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// PageMeta pulls title/meta/link facts from the document.
func PageMeta(doc *goquery.Document) Meta {
	attr := func(selector string) string {
		val, _ := doc.Find(selector).First().Attr("content")
		return val
	}
	canonical, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	return Meta{
		Title:         doc.Find("title").First().Text(),
		Description:   attr(`meta[name="description"]`),
		Keywords:      attr(`meta[name="keywords"]`),
		OGTitle:       attr(`meta[property="og:title"]`),
		OGDescription: attr(`meta[property="og:description"]`),
		OGImage:       attr(`meta[property="og:image"]`),
		Canonical:     canonical,
	}
}

// Headings collects non-empty heading texts per level, in document order.
func Headings(doc *goquery.Document) analysis.HeadingStructure {
	collect := func(tag string) []string {
		var out []string
		doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if text != "" {
				out = append(out, text)
			}
		})
		return out
	}
	return analysis.HeadingStructure{
		H1: collect("h1"),
		H2: collect("h2"),
		H3: collect("h3"),
		H4: collect("h4"),
		H5: collect("h5"),
		H6: collect("h6"),
	}
}

// SchemaBlocks parses JSON-LD scripts. Blocks that fail to parse are silently
// skipped; @type values are flattened and de-duplicated.
func SchemaBlocks(doc *goquery.Document) Schema {
	var schema Schema
	seen := make(map[string]struct{})
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}
		var block any
		if err := json.Unmarshal([]byte(raw), &block); err != nil {
			return
		}
		schema.Blocks = append(schema.Blocks, block)
		for _, typ := range blockTypes(block) {
			if _, dup := seen[typ]; dup {
				continue
			}
			seen[typ] = struct{}{}
			schema.Types = append(schema.Types, typ)
		}
	})
	return schema
}

func blockTypes(block any) []string {
	obj, ok := block.(map[string]any)
	if !ok {
		return nil
	}
	switch typ := obj["@type"].(type) {
	case string:
		return []string{typ}
	case []any:
		var out []string
		for _, item := range typ {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// PageLinks resolves anchors against the base URL and buckets them by host.
// Unparseable hrefs are dropped; duplicates are removed.
func PageLinks(doc *goquery.Document, baseURL string) Links {
	var links Links
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return links
	}
	internal := make(map[string]struct{})
	external := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Host == "" {
			return
		}
		if resolved.Host == base.Host {
			if _, dup := internal[resolved.String()]; !dup {
				internal[resolved.String()] = struct{}{}
				links.Internal = append(links.Internal, resolved.String())
			}
			return
		}
		if _, dup := external[resolved.String()]; !dup {
			external[resolved.String()] = struct{}{}
			links.External = append(links.External, resolved.String())
		}
	})
	return links
}

// Text returns the visible body text with scripts, styles and noscript
// blocks removed and whitespace collapsed.
func Text(body []byte) string {
	doc, err := Parse(body)
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	raw := doc.Find("body").Text()
	return strings.Join(strings.Fields(raw), " ")
}
