package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// IgnoredTerms holds terms that exclude a release from search results
type IgnoredTerms struct {
	terms []string
}

// NewIgnoredTerms creates a term list from memory
func NewIgnoredTerms(terms ...string) *IgnoredTerms {
	t := &IgnoredTerms{}
	for _, term := range terms {
		t.add(term)
	}
	return t
}

// LoadIgnoredTerms loads one term per line; blank lines and # comments are skipped
func LoadIgnoredTerms(path string) (*IgnoredTerms, error) {
	// A missing file means no ignored terms
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewIgnoredTerms(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ignored terms: %w", err)
	}
	defer file.Close()

	t := NewIgnoredTerms()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		t.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignored terms: %w", err)
	}
	return t, nil
}

func (t *IgnoredTerms) add(term string) {
	term = strings.TrimSpace(term)
	if term != "" && !strings.HasPrefix(term, "#") {
		t.terms = append(t.terms, term)
	}
}

// Len returns the number of terms
func (t *IgnoredTerms) Len() int {
	return len(t.terms)
}

// Match checks if a title contains any term, ignoring case
// Returns (matched, matchedTerm)
func (t *IgnoredTerms) Match(title string) (bool, string) {
	titleLower := strings.ToLower(title)
	for _, term := range t.terms {
		if strings.Contains(titleLower, strings.ToLower(term)) {
			return true, term
		}
	}
	return false, ""
}
