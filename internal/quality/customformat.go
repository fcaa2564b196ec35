package quality

import (
	"fmt"
	"strings"

	"github.com/amaumene/grabarr/internal/parser"
)

// Implementation is the field a specification tests
type Implementation string

const (
	ImplContains     Implementation = "contains"
	ImplNotContains  Implementation = "notContains"
	ImplResolution   Implementation = "resolution"
	ImplSource       Implementation = "source"
	ImplCodec        Implementation = "codec"
	ImplReleaseGroup Implementation = "releaseGroup"
)

// Specification is a single rule of a custom format
type Specification struct {
	Implementation Implementation `mapstructure:"implementation" json:"implementation"`
	Negate         bool           `mapstructure:"negate" json:"negate"`
	Required       bool           `mapstructure:"required" json:"required"`
	Value          string         `mapstructure:"value" json:"value"`
}

// CustomFormat is a named set of specifications used to tag and score releases
type CustomFormat struct {
	Name           string          `mapstructure:"name" json:"name"`
	Specifications []Specification `mapstructure:"specifications" json:"specifications"`
}

// Validate rejects unknown implementations and empty formats
func (cf CustomFormat) Validate() error {
	if cf.Name == "" {
		return fmt.Errorf("custom format has no name")
	}
	if len(cf.Specifications) == 0 {
		return fmt.Errorf("custom format %q has no specifications", cf.Name)
	}
	for _, spec := range cf.Specifications {
		switch spec.Implementation {
		case ImplContains, ImplNotContains, ImplResolution, ImplSource, ImplCodec, ImplReleaseGroup:
		default:
			return fmt.Errorf("custom format %q: unknown implementation %q", cf.Name, spec.Implementation)
		}
	}
	return nil
}

// evaluate returns the truth value of a specification after negation
func (s Specification) evaluate(parsed parser.ParsedRelease, title string) bool {
	var result bool
	switch s.Implementation {
	case ImplContains:
		result = strings.Contains(strings.ToLower(title), strings.ToLower(s.Value))
	case ImplNotContains:
		result = !strings.Contains(strings.ToLower(title), strings.ToLower(s.Value))
	case ImplResolution:
		result = parsed.Resolution != "" && strings.EqualFold(parsed.Resolution, s.Value)
	case ImplSource:
		result = parsed.Source != "" && strings.EqualFold(parsed.Source, s.Value)
	case ImplCodec:
		result = parsed.Codec != "" && strings.EqualFold(parsed.Codec, s.Value)
	case ImplReleaseGroup:
		result = parsed.ReleaseGroup != "" && strings.EqualFold(parsed.ReleaseGroup, s.Value)
	default:
		return false
	}
	if s.Negate {
		return !result
	}
	return result
}

// MatchFormat reports whether a release matches the custom format: every
// required specification passes, and at least one optional specification
// passes when any exist.
func MatchFormat(cf CustomFormat, parsed parser.ParsedRelease, title string) bool {
	if len(cf.Specifications) == 0 {
		return false
	}
	hasOptional, optionalPassed := false, false
	for _, spec := range cf.Specifications {
		ok := spec.evaluate(parsed, title)
		if spec.Required {
			if !ok {
				return false
			}
			continue
		}
		hasOptional = true
		if ok {
			optionalPassed = true
		}
	}
	return !hasOptional || optionalPassed
}

// FormatScore sums the assigned score of every matching format and returns
// the names of the formats that matched
func FormatScore(formats []CustomFormat, scores map[string]int, parsed parser.ParsedRelease, title string) (int, []string) {
	total := 0
	var matched []string
	for _, cf := range formats {
		if !MatchFormat(cf, parsed, title) {
			continue
		}
		matched = append(matched, cf.Name)
		total += assignedScore(scores, cf.Name)
	}
	return total, matched
}

// assignedScore looks up a format score by name, ignoring case
func assignedScore(scores map[string]int, name string) int {
	if v, ok := scores[name]; ok {
		return v
	}
	for k, v := range scores {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return 0
}
