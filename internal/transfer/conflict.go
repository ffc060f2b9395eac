// Package transfer provides bookmark import and export.
//
// Import accepts JSON or CSV files, maps legacy field names, repairs
// records that are missing required fields, and classifies each incoming
// tag against the existing tag set so the caller can decide how conflicts
// resolve before applying records to the store. Export writes the current
// document as JSON, CSV, Markdown, or YAML.
package transfer

import (
	"github.com/agnivade/levenshtein"

	"github.com/shelfmark/shelfmark/internal/model"
)

// ConflictKind classifies how an incoming tag name relates to the existing
// tag set.
type ConflictKind string

const (
	// KindExact means the incoming name is byte-identical to an existing name.
	KindExact ConflictKind = "exact"

	// KindCaseVariant means the incoming name case-insensitively equals
	// exactly one existing name but differs in case.
	KindCaseVariant ConflictKind = "case_variant"

	// KindSimilar means the incoming name's normalized Levenshtein
	// similarity to some existing name exceeds SimilarityThreshold.
	KindSimilar ConflictKind = "similar"

	// KindNew means none of the above: the tag is genuinely new.
	KindNew ConflictKind = "new"
)

// Action is the default resolution for a classified conflict. The user may
// override anything except Exact (a byte-identical tag needs no prompt).
type Action string

const (
	// ActionMerge folds the incoming tag onto MatchedTo.
	ActionMerge Action = "merge"

	// ActionKeep creates the incoming tag as a new tag.
	ActionKeep Action = "keep"
)

// SimilarityThreshold is the exclusive lower bound for a Similar match,
// where similarity = (maxLen - editDistance) / maxLen.
const SimilarityThreshold = 0.8

// Decision is the classifier's verdict for one incoming tag name.
type Decision struct {
	Incoming   string       `json:"incoming"`
	Kind       ConflictKind `json:"kind"`
	MatchedTo  string       `json:"matched_to,omitempty"`
	Similarity float64      `json:"similarity,omitempty"`
	Action     Action       `json:"action"`
}

// Classify decides how one incoming tag name relates to the existing tag
// names. Precedence is Exact, then CaseVariant, then Similar, then New;
// the first matching rule wins. Ties within Similar are broken by the order
// existing tags are enumerated, not re-sorted by score.
func Classify(incoming string, existing []string) Decision {
	for _, name := range existing {
		if name == incoming {
			return Decision{
				Incoming:   incoming,
				Kind:       KindExact,
				MatchedTo:  name,
				Similarity: 1,
				Action:     ActionMerge,
			}
		}
	}

	var caseMatches []string
	key := model.Normalize(incoming)
	for _, name := range existing {
		if model.Normalize(name) == key {
			caseMatches = append(caseMatches, name)
		}
	}
	if len(caseMatches) == 1 {
		return Decision{
			Incoming:   incoming,
			Kind:       KindCaseVariant,
			MatchedTo:  caseMatches[0],
			Similarity: 1,
			Action:     ActionMerge,
		}
	}

	best := ""
	bestScore := 0.0
	for _, name := range existing {
		score := similarity(incoming, name)
		if score > SimilarityThreshold && score > bestScore {
			best = name
			bestScore = score
		}
	}
	if best != "" {
		return Decision{
			Incoming:   incoming,
			Kind:       KindSimilar,
			MatchedTo:  best,
			Similarity: bestScore,
			Action:     ActionMerge,
		}
	}

	return Decision{Incoming: incoming, Kind: KindNew, Action: ActionKeep}
}

// similarity returns the normalized Levenshtein similarity of two names.
func similarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}
