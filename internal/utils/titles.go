package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)
	articleRegex  = regexp.MustCompile(`^(the|a|an) `)
)

// FoldAccents strips diacritics ("Säsong" -> "Sasong")
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeTitle lowercases, folds accents and collapses punctuation to single spaces
func NormalizeTitle(title string) string {
	s := strings.ToLower(FoldAccents(title))
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "'", "")
	s = nonAlnumRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return articleRegex.ReplaceAllString(s, "")
}

// TitleSimilarity returns a score in [0,1] where 1 means the normalized titles are equal
func TitleSimilarity(a, b string) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == nb {
		return 1
	}
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(dist)/float64(longest)
}

// TitlesMatch reports whether two titles are similar enough to refer to the same work
func TitlesMatch(a, b string, threshold float64) bool {
	return TitleSimilarity(a, b) >= threshold
}
