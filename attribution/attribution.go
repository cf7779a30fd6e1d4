// Package attribution implements AttributionAnalyzer: classifying a cluster
// of RuntimeValidator errors as likely caused by the calling SDK/client, by
// the spec itself, or ambiguous — with a confidence score and a templated
// remediation suggestion.
package attribution

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/schema"
	"github.com/speclab/schemacore/validator"
)

// Kind is the closed classification set.
type Kind string

const (
	KindSDK       Kind = "sdk"
	KindSpec      Kind = "spec"
	KindAmbiguous Kind = "ambiguous"
)

// Result is the analyzer's output, matching spec.md §4.8.
type Result struct {
	Kind       Kind
	Confidence float64
	Primary    *validator.ValidationError
	Related    []validator.ValidationError
	Suggestion string
}

// vote is one heuristic's weighted opinion.
type vote struct {
	kind   Kind
	weight float64
	err    validator.ValidationError
	reason string
}

var lookaroundPattern = regexp.MustCompile(`\(\?[=!<]`)

// SchemaContext gives heuristics access to the schema node each error was
// raised against, keyed by schema pointer, so e.g. the "conflicting
// keywords" heuristic can see the offending node directly instead of
// re-parsing the message string.
type SchemaContext struct {
	BySchemaPointer map[string]*schema.Schema
}

// Analyze classifies errs per spec.md §4.8's weighted-vote heuristics.
// Empty input returns Ambiguous with confidence 0; callers should not
// invoke this when no errors exist, but a defensive zero-value result is
// returned rather than panicking.
func Analyze(errs []validator.ValidationError, data document.Value, ctx SchemaContext) Result {
	if len(errs) == 0 {
		return Result{Kind: KindAmbiguous, Confidence: 0}
	}

	var votes []vote
	for _, e := range errs {
		votes = append(votes, voteFor(e, ctx)...)
	}

	tally := map[Kind]float64{KindSDK: 0, KindSpec: 0, KindAmbiguous: 0}
	best := map[Kind]vote{}
	for _, v := range votes {
		tally[v.kind] += v.weight
		if cur, ok := best[v.kind]; !ok || v.weight > cur.weight {
			best[v.kind] = v
		}
	}

	winner := rankedWinner(tally)
	confidence := confidenceFor(tally, winner)

	result := Result{Kind: winner, Confidence: confidence}
	if primary, ok := best[winner]; ok {
		primaryErr := primary.err
		result.Primary = &primaryErr
		result.Suggestion = suggestionFor(winner, primary)
	}
	result.Related = errs
	return result
}

func rankedWinner(tally map[Kind]float64) Kind {
	best := KindAmbiguous
	bestWeight := tally[KindAmbiguous]
	for _, k := range []Kind{KindSDK, KindSpec} {
		if tally[k] > bestWeight {
			best = k
			bestWeight = tally[k]
		}
	}
	return best
}

// confidenceFor normalizes the margin between the winner and the runner-up
// into [0,1].
func confidenceFor(tally map[Kind]float64, winner Kind) float64 {
	total := tally[KindSDK] + tally[KindSpec] + tally[KindAmbiguous]
	if total == 0 {
		return 0
	}
	second := 0.0
	for k, w := range tally {
		if k == winner {
			continue
		}
		if w > second {
			second = w
		}
	}
	margin := (tally[winner] - second) / total
	if margin < 0 {
		margin = 0
	}
	if margin > 1 {
		margin = 1
	}
	return margin
}

// voteFor applies every heuristic spec.md §4.8 names to a single error,
// each independently contributing zero or more votes.
func voteFor(e validator.ValidationError, ctx SchemaContext) []vote {
	var votes []vote

	switch e.Keyword {
	case "type", "enum", "const":
		votes = append(votes, vote{kind: KindSDK, weight: 3, err: e, reason: "client-supplied value has the wrong type/value"})
	case "required":
		votes = append(votes, vote{kind: KindSDK, weight: 3, err: e, reason: "a required field was omitted by the client"})
	case "format":
		if isWellKnownFormat(e) {
			votes = append(votes, vote{kind: KindSDK, weight: 2.5, err: e, reason: "value fails a well-known format check"})
		}
	}

	node := ctx.BySchemaPointer[strings.TrimSuffix(e.SchemaPointer, "/"+e.Keyword)]
	if node != nil {
		if e.Keyword == "pattern" && (len(node.Pattern) > 50 || lookaroundPattern.MatchString(node.Pattern)) {
			votes = append(votes, vote{kind: KindSpec, weight: 2, err: e, reason: "pattern is unusually restrictive or uses lookaround"})
		}
		if e.Keyword == "maxLength" && node.MaxLength != nil && *node.MaxLength < 3 {
			votes = append(votes, vote{kind: KindSpec, weight: 2, err: e, reason: "maxLength is implausibly small"})
		}
		if conflict := conflictingKeywords(node); conflict != "" {
			votes = append(votes, vote{kind: KindSpec, weight: 3, err: e, reason: conflict})
		}
	}

	return votes
}

func isWellKnownFormat(e validator.ValidationError) bool {
	switch {
	case strings.Contains(e.Message, "email"):
		return true
	case strings.Contains(e.Message, "uuid"):
		return true
	case strings.Contains(e.Message, "date-time"):
		return true
	default:
		return false
	}
}

// conflictingKeywords detects one type-vs-keyword contradiction that
// processor.structuralDiagnostics also flags: a single declared type
// "string" alongside items/minItems/maxItems. Other type/keyword
// combinations are not checked here. It is re-derived here so
// AttributionAnalyzer can run standalone against a bare schema node.
func conflictingKeywords(node *schema.Schema) string {
	if len(node.Type) != 1 {
		return ""
	}
	t := node.Type[0]
	arrayOnly := node.Items != nil || node.MinItems != nil || node.MaxItems != nil
	if t == "string" && arrayOnly {
		return fmt.Sprintf("type %q declared alongside array-only keywords", t)
	}
	return ""
}

func suggestionFor(kind Kind, v vote) string {
	switch kind {
	case KindSDK:
		return fmt.Sprintf("Check the client payload at %s: %s", v.err.DataPointer, v.reason)
	case KindSpec:
		return fmt.Sprintf("Review the schema at %s: %s", v.err.SchemaPointer, v.reason)
	default:
		return "Unable to determine a single dominating cause; review both the request and the schema."
	}
}
