// ABOUTME: Fulfilled-status resolution against CRM property options and pipeline stages
// ABOUTME: Normalizes labels (unicode, dashes, whitespace) and matches with prefix tolerance
package crm

import (
	"fmt"
	"log"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeStatusValue canonicalizes a human-entered status label: NFKC
// form, every dash variant folded to '-', whitespace runs collapsed to a
// single space, trailing punctuation stripped, lowercased.
func normalizeStatusValue(value string) string {
	value = norm.NFKC.String(value)

	var b strings.Builder
	b.Grow(len(value))
	lastSpace := false
	for _, r := range value {
		switch {
		case unicode.Is(unicode.Pd, r):
			b.WriteRune('-')
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
		default:
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		}
	}

	out := strings.TrimSpace(b.String())
	out = strings.TrimRight(out, ".,;:")
	return out
}

// statusMatches reports whether a deal's status value matches a configured
// fulfilled label. Matching is prefix-tolerant in both directions so
// "Fullföljd" matches "Fullföljd - klar" and vice versa.
func statusMatches(configured, actual string) bool {
	a := normalizeStatusValue(configured)
	b := normalizeStatusValue(actual)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

var lookupKeyTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeLookupKey reduces a property name to lowercase alphanumerics with
// accents stripped, so "Säljid" finds the "saljid" property.
func normalizeLookupKey(key string) string {
	stripped, _, err := transform.String(lookupKeyTransformer, key)
	if err != nil {
		stripped = key
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// StatusResolver resolves which raw stage ids and labels count as fulfilled.
// The fulfilled set is resolved once per process from the CRM's property
// options and pipeline stages, then cached.
type StatusResolver struct {
	cfg    *Config
	client *Client

	resolved  bool
	fulfilled map[string]bool // normalized values, ids and labels alike
}

func NewStatusResolver(cfg *Config, client *Client) *StatusResolver {
	return &StatusResolver{cfg: cfg, client: client}
}

// IsFulfilled reports whether a raw deal stage value counts as fulfilled.
func (r *StatusResolver) IsFulfilled(stage string) bool {
	r.ensureResolved()

	key := normalizeStatusValue(stage)
	if key == "" {
		return false
	}
	if r.fulfilled[key] {
		return true
	}
	// Prefix tolerance for label-valued stages
	for _, label := range r.cfg.FulfilledValues {
		if statusMatches(label, stage) {
			return true
		}
	}
	return false
}

func (r *StatusResolver) ensureResolved() {
	if r.resolved {
		return
	}
	r.resolved = true
	r.fulfilled = make(map[string]bool)

	// Configured labels always count, even when option discovery fails.
	for _, label := range r.cfg.FulfilledValues {
		if key := normalizeStatusValue(label); key != "" {
			r.fulfilled[key] = true
		}
	}

	if r.client == nil {
		return
	}

	if err := r.discover(); err != nil {
		log.Printf("status discovery failed, matching configured labels only: %v", err)
	}
}

// discover expands the fulfilled set with the internal values of matching
// property options and the ids of matching pipeline stages.
func (r *StatusResolver) discover() error {
	options, err := r.client.FetchDealPropertyOptions(r.cfg.FulfilledProperty)
	if err != nil {
		return fmt.Errorf("failed to fetch property options: %w", err)
	}
	for _, opt := range options {
		for _, label := range r.cfg.FulfilledValues {
			if statusMatches(label, opt.Label) || statusMatches(label, opt.Value) {
				if key := normalizeStatusValue(opt.Value); key != "" {
					r.fulfilled[key] = true
				}
			}
		}
	}

	stages, err := r.client.FetchPipelineStages()
	if err != nil {
		return fmt.Errorf("failed to fetch pipeline stages: %w", err)
	}
	for _, stage := range stages {
		for _, label := range r.cfg.FulfilledValues {
			if statusMatches(label, stage.Label) {
				if key := normalizeStatusValue(stage.ID); key != "" {
					r.fulfilled[key] = true
				}
				if key := normalizeStatusValue(stage.Label); key != "" {
					r.fulfilled[key] = true
				}
			}
		}
	}

	return nil
}
