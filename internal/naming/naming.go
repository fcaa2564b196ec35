// Package naming renders library paths from user-editable templates.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/amaumene/grabarr/internal/models"
)

// ErrEscapesRoot is returned when a rendered path would leave the library root
var ErrEscapesRoot = errors.New("path escapes library root")

// DefaultTemplates are used when a media type has no configured template
var DefaultTemplates = map[models.MediaType]string{
	models.MediaTypeTV:    "{Series Title}/Season {Season:00}/{Series Title} - S{Season:00}E{Episode:00} - {Episode Title} [{Quality}]",
	models.MediaTypeMovie: "{Movie Title} ({Year})/{Movie Title} ({Year}) [{Quality}]",
	models.MediaTypeMusic: "{Artist Name}/{Album Title} ({Year})/{Track:00} - {Track Title}",
	models.MediaTypeBook:  "{Author Name}/{Book Title} ({Year})/{Book Title}",
}

var vocabulary = map[models.MediaType][]string{
	models.MediaTypeTV:    {"Series Title", "Season", "Episode", "Episode Title", "Quality", "Year", "Release Group"},
	models.MediaTypeMovie: {"Movie Title", "Year", "Quality", "Release Group"},
	models.MediaTypeMusic: {"Artist Name", "Album Title", "Track", "Disc", "Track Title", "Quality", "Year", "Release Group"},
	models.MediaTypeBook:  {"Author Name", "Book Title", "Quality", "Year", "Release Group"},
}

var (
	tokenRegex   = regexp.MustCompile(`\{([A-Za-z ]+)(?::(0+))?\}`)
	emptyBracket = regexp.MustCompile(`\s*(?:\(\s*\)|\[\s*\])`)
	spaceRun     = regexp.MustCompile(`\s{2,}`)
	danglingDash = regexp.MustCompile(`(?:\s+-)+\s*$|^\s*(?:-\s+)+`)
	dashBracket  = regexp.MustCompile(`\s+-\s+([\[(])`)
	illegalChars = strings.NewReplacer(
		":", " -", "/", "-", `\`, "-", "?", "", "*", "", `"`, "'", "<", "", ">", "", "|", "",
	)
)

// Values holds the fields a template can reference
type Values struct {
	SeriesTitle  string
	EpisodeTitle string
	MovieTitle   string
	ArtistName   string
	AlbumTitle   string
	TrackTitle   string
	AuthorName   string
	BookTitle    string
	Quality      string
	ReleaseGroup string
	Season       int
	Episode      int
	EndEpisode   int
	Track        int
	Disc         int
	Year         int
}

// Validate checks a template against the vocabulary of a media type
func Validate(mediaType models.MediaType, template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("naming template is empty")
	}
	if filepath.IsAbs(template) || strings.HasPrefix(template, "/") {
		return fmt.Errorf("naming template %q must be relative", template)
	}
	for _, segment := range strings.Split(template, "/") {
		if segment == ".." || segment == "." {
			return fmt.Errorf("naming template %q: %w", template, ErrEscapesRoot)
		}
	}

	known := make(map[string]bool)
	for _, name := range vocabulary[mediaType] {
		known[name] = true
	}
	for _, m := range tokenRegex.FindAllStringSubmatch(template, -1) {
		if !known[m[1]] {
			return fmt.Errorf("naming template: unknown token {%s} for %s", m[1], mediaType)
		}
	}
	rest := tokenRegex.ReplaceAllString(template, "")
	if strings.ContainsAny(rest, "{}") {
		return fmt.Errorf("naming template %q has unbalanced braces", template)
	}
	return nil
}

// Render substitutes values into the template and returns a relative path
// without extension
func Render(mediaType models.MediaType, template string, v Values) (string, error) {
	if err := Validate(mediaType, template); err != nil {
		return "", err
	}

	var segments []string
	for _, segment := range strings.Split(template, "/") {
		rendered := tokenRegex.ReplaceAllStringFunc(segment, func(tok string) string {
			m := tokenRegex.FindStringSubmatch(tok)
			return sanitize(v.lookup(m[1], len(m[2])))
		})
		rendered = tidy(rendered)
		if rendered == "" {
			continue
		}
		segments = append(segments, rendered)
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("naming template %q rendered an empty path", template)
	}
	return filepath.Join(segments...), nil
}

// SafeJoin joins a rendered relative path onto a library root, refusing any
// result outside the root
func SafeJoin(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("library root is not configured")
	}
	root = filepath.Clean(root)
	joined := filepath.Join(root, rel)
	r, err := filepath.Rel(root, joined)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", rel, err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, ErrEscapesRoot)
	}
	return joined, nil
}

func (v Values) lookup(name string, pad int) string {
	switch name {
	case "Series Title":
		return v.SeriesTitle
	case "Episode Title":
		return v.EpisodeTitle
	case "Movie Title":
		return v.MovieTitle
	case "Artist Name":
		return v.ArtistName
	case "Album Title":
		return v.AlbumTitle
	case "Track Title":
		return v.TrackTitle
	case "Author Name":
		return v.AuthorName
	case "Book Title":
		return v.BookTitle
	case "Quality":
		return v.Quality
	case "Release Group":
		return v.ReleaseGroup
	case "Season":
		return number(v.Season, pad)
	case "Episode":
		ep := number(v.Episode, pad)
		// Multi-episode files list every episode: 01E02E03
		for e := v.Episode + 1; e <= v.EndEpisode; e++ {
			ep += "E" + number(e, pad)
		}
		return ep
	case "Track":
		return number(v.Track, pad)
	case "Disc":
		if v.Disc == 0 {
			return ""
		}
		return number(v.Disc, pad)
	case "Year":
		if v.Year == 0 {
			return ""
		}
		return strconv.Itoa(v.Year)
	}
	return ""
}

func number(n, pad int) string {
	if pad == 0 {
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%0*d", pad, n)
}

func sanitize(s string) string {
	s = illegalChars.Replace(s)
	s = strings.ReplaceAll(s, "..", ".")
	return strings.TrimSpace(s)
}

// tidy removes brackets and separators left behind by empty values
func tidy(s string) string {
	s = emptyBracket.ReplaceAllString(s, "")
	s = spaceRun.ReplaceAllString(s, " ")
	s = dashBracket.ReplaceAllString(s, " $1")
	s = danglingDash.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " - - ", " - ")
	return strings.Trim(strings.TrimSpace(s), ".")
}
