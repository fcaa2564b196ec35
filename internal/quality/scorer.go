package quality

import (
	"sort"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/parser"
)

// rankStep is the score difference between adjacent ranks
const rankStep = 100

// ScoredRelease is the result of scoring a release against a profile
type ScoredRelease struct {
	Allowed           bool                 `json:"allowed"`
	Score             int                  `json:"score"`
	QualityID         *int                 `json:"qualityId"`
	QualityName       string               `json:"qualityName"`
	MeetsCustomCutoff bool                 `json:"meetsCustomCutoff"`
	FormatScore       int                  `json:"formatScore"`
	MatchedFormats    []string             `json:"matchedFormats,omitempty"`
	Parsed            parser.ParsedRelease `json:"parsed"`
	Candidate         models.Candidate     `json:"candidate"`
	rank              int
}

// Rank returns the profile rank of the release quality, or -1 when unrecognized
func (s ScoredRelease) Rank() int {
	return s.rank
}

// ScoreRelease parses a title and maps its quality onto the profile items
func ScoreRelease(title string, mediaType models.MediaType, items []Item, cutoff int) ScoredRelease {
	parsed := parser.Parse(title, mediaType)
	return scoreParsed(parsed, items, cutoff)
}

func scoreParsed(parsed parser.ParsedRelease, items []Item, cutoff int) ScoredRelease {
	result := ScoredRelease{Parsed: parsed, QualityName: parsed.Quality, rank: -1}

	rank := RankOf(items, parsed.Quality)
	if rank < 0 {
		return result
	}

	item := items[rank]
	id := item.ID
	result.QualityID = &id
	result.QualityName = item.Name
	result.rank = rank
	if !item.Allowed {
		return result
	}

	result.Allowed = true
	result.Score = (rank + 1) * rankStep
	result.MeetsCustomCutoff = rank >= cutoffRank(items, cutoff)
	return result
}

// ScoreAndRankReleases scores every candidate, drops disallowed and
// unrecognized ones plus those below the profile's minimum format score, and
// sorts the rest by score, then format score, then declared size
func ScoreAndRankReleases(candidates []models.Candidate, mediaType models.MediaType, profile Profile, formats []CustomFormat) []ScoredRelease {
	ranked := make([]ScoredRelease, 0, len(candidates))
	for _, c := range candidates {
		scored := ScoreRelease(c.Title, mediaType, profile.Items, profile.Cutoff)
		if !scored.Allowed || scored.QualityID == nil {
			continue
		}
		scored.FormatScore, scored.MatchedFormats = FormatScore(formats, profile.FormatScores, scored.Parsed, c.Title)
		if scored.FormatScore < profile.MinFormatScore {
			continue
		}
		scored.Candidate = c
		ranked = append(ranked, scored)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].FormatScore != ranked[j].FormatScore {
			return ranked[i].FormatScore > ranked[j].FormatScore
		}
		return ranked[i].Candidate.Size > ranked[j].Candidate.Size
	})

	return ranked
}

// IsUpgrade reports whether the candidate should replace the current file
func IsUpgrade(currentQualityName, candidateTitle string, mediaType models.MediaType, items []Item, cutoff int, upgradeAllowed bool) bool {
	if !upgradeAllowed {
		return false
	}
	candidate := ScoreRelease(candidateTitle, mediaType, items, cutoff)
	return isUpgrade(currentQualityName, candidate, items, cutoff)
}

func isUpgrade(currentQualityName string, candidate ScoredRelease, items []Item, cutoff int) bool {
	if !candidate.Allowed {
		return false
	}
	if currentQualityName == "" {
		return true
	}
	current := RankOf(items, currentQualityName)
	if current >= 0 && current >= cutoffRank(items, cutoff) {
		return false
	}
	return candidate.rank > current
}

// IsCutoffUnmet reports whether an item with the current quality is still wanted
func IsCutoffUnmet(currentQualityName string, items []Item, cutoff int) bool {
	if currentQualityName == "" {
		return true
	}
	current := RankOf(items, currentQualityName)
	if current < 0 {
		return true
	}
	return current < cutoffRank(items, cutoff)
}

// IsScoredUpgrade is IsUpgrade for a release that has already been scored
func IsScoredUpgrade(currentQualityName string, candidate ScoredRelease, profile Profile) bool {
	if !profile.UpgradeAllowed {
		return false
	}
	return isUpgrade(currentQualityName, candidate, profile.Items, profile.Cutoff)
}
