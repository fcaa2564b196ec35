// Package parser turns release titles and file paths into structured metadata.
// Parsing never fails: unrecognised input yields a release whose title is the
// cleaned input and whose optional fields are unset.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/cehbz/torrentname"
)

var (
	multiConcatRegex = regexp.MustCompile(`(?i)\bS(\d{1,2})E(\d{1,3})((?:E\d{1,3})+)`)
	multiDashRegex   = regexp.MustCompile(`(?i)\bS(\d{1,2})E(\d{1,3})-(\w+)`)
	episodeRegex     = regexp.MustCompile(`(?i)\bS(\d{1,2})E(\d{1,3})`)
	crossRegex       = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	seasonPackRegex  = regexp.MustCompile(`(?i)\b(?:S(\d{1,2})|Season[ .](\d{1,2}))\b`)
	concatEpRegex    = regexp.MustCompile(`(?i)E(\d{1,3})`)
	malformedSegment = regexp.MustCompile(`(?i)^E?\d+$`)

	yearRegex     = regexp.MustCompile(`\(?\b((?:19|20)\d{2})\b\)?`)
	groupRegex    = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
	trailingTags  = regexp.MustCompile(`(?:\s*\[[^\]]*\])+$`)
	separators    = regexp.MustCompile(`[._]+`)
	multiSpace    = regexp.MustCompile(`\s{2,}`)
	trackRegex    = regexp.MustCompile(`^(?:(\d{1,2})-)?(\d{1,3})(?:\s*[-.]\s*|\s+)(.+)$`)
	discRegex     = regexp.MustCompile(`(?i)\b(?:cd|disc|disk)[ .]?(\d{1,2})\b`)
	isbnTagRegex  = regexp.MustCompile(`(?i)\bisbn(?:-?1[03])?[:\s]*([\d-]{9,17}[\dXx])`)
	isbnBareRegex = regexp.MustCompile(`\b(97[89]-?[\d-]{9,13}\d)\b`)
)

// Parse extracts structured metadata from a release title or file name
func Parse(title string, mediaType models.MediaType) ParsedRelease {
	cleaned, ext := stripExtension(strings.TrimSpace(title))
	p := ParsedRelease{
		MediaType: mediaType,
		Title:     cleaned,
		Details:   emptyDetails(mediaType),
	}
	if cleaned == "" {
		return p
	}

	// Underscores count as separators; replacing them keeps offsets intact
	s := strings.ReplaceAll(cleaned, "_", " ")

	var resLoc []int
	p.Resolution, resLoc = matchFirst(resolutionTokens, s)
	p.Source, _ = matchFirst(sourceTokens, s)
	p.Codec, _ = matchFirst(codecTokens, s)
	if p.Codec == "" && (p.Resolution != "" || p.Source != "") {
		p.Codec = codecFallback(cleaned)
	}

	var tv TVDetails
	epLoc := []int(nil)
	if mediaType == models.MediaTypeTV {
		tv, epLoc = parseEpisode(s)
	}

	qualityStart, _ := tokenBounds(s, 0, resolutionTokens, sourceTokens, codecTokens)
	_, lastEnd := tokenBounds(s, 0, resolutionTokens, sourceTokens, codecTokens, markerTokens, editionTokens, bookFormatTokens)

	yearLimit := len(s)
	if epLoc != nil {
		yearLimit = epLoc[0]
	}
	if resLoc != nil && resLoc[0] < yearLimit {
		yearLimit = resLoc[0]
	}
	yearLoc := findYear(s, yearLimit)
	if yearLoc != nil {
		y, _ := strconv.Atoi(s[yearLoc[2]:yearLoc[3]])
		p.Year = &y
	}

	// Title runs up to the episode or year token, else up to the first quality token
	titleEnd := -1
	for _, loc := range [][]int{epLoc, yearLoc} {
		if loc != nil && (titleEnd == -1 || loc[0] < titleEnd) {
			titleEnd = loc[0]
		}
	}
	if titleEnd == -1 {
		titleEnd = qualityStart
	}

	groupStart := -1
	if lastEnd != -1 {
		trimmed := trailingTags.ReplaceAllString(s, "")
		if m := groupRegex.FindStringSubmatchIndex(trimmed); m != nil && m[0] >= lastEnd {
			p.ReleaseGroup = trimmed[m[2]:m[3]]
			groupStart = m[0]
		}
	}

	head := s
	if titleEnd != -1 {
		head = s[:titleEnd]
	}
	if t := cleanTitle(head); t != "" {
		p.Title = t
	}

	switch mediaType {
	case models.MediaTypeTV:
		if epLoc != nil && !tv.IsSeasonPack {
			tv.EpisodeTitle = episodeTitle(s, epLoc[1], groupStart)
		}
		p.Details = tv
	case models.MediaTypeMovie:
		edition, _ := matchFirst(editionTokens, s)
		p.Details = MovieDetails{Edition: edition}
	case models.MediaTypeMusic:
		p.Details = parseMusic(&p, s, titleEnd)
	case models.MediaTypeBook:
		p.Details = parseBook(&p, s, ext)
	}

	p.Quality = deriveQuality(p)
	return p
}

// parseEpisode tries the episode patterns from most to least specific
func parseEpisode(s string) (TVDetails, []int) {
	var tv TVDetails

	if m := multiConcatRegex.FindStringSubmatchIndex(s); m != nil {
		season, _ := strconv.Atoi(s[m[2]:m[3]])
		start, _ := strconv.Atoi(s[m[4]:m[5]])
		eps := concatEpRegex.FindAllStringSubmatch(s[m[6]:m[7]], -1)
		end, _ := strconv.Atoi(eps[len(eps)-1][1])
		tv.SeasonNumber = intPtr(season)
		tv.EpisodeNumber = intPtr(start)
		if end > start {
			tv.EndEpisodeNumber = intPtr(end)
			tv.IsMultiEpisode = true
		}
		return tv, m[:2]
	}

	var dashEnd int
	if m := multiDashRegex.FindStringSubmatchIndex(s); m != nil {
		start, _ := strconv.Atoi(s[m[4]:m[5]])
		seg := s[m[6]:m[7]]
		// A trailing segment that is not a plain episode number falls through
		// to the single-episode form
		if end, err := strconv.Atoi(seg); err == nil && end > start {
			season, _ := strconv.Atoi(s[m[2]:m[3]])
			tv.SeasonNumber = intPtr(season)
			tv.EpisodeNumber = intPtr(start)
			tv.EndEpisodeNumber = intPtr(end)
			tv.IsMultiEpisode = true
			return tv, m[:2]
		}
		if malformedSegment.MatchString(seg) {
			dashEnd = m[1]
		}
	}

	if m := episodeRegex.FindStringSubmatchIndex(s); m != nil {
		season, _ := strconv.Atoi(s[m[2]:m[3]])
		episode, _ := strconv.Atoi(s[m[4]:m[5]])
		tv.SeasonNumber = intPtr(season)
		tv.EpisodeNumber = intPtr(episode)
		if dashEnd > m[1] {
			return tv, []int{m[0], dashEnd}
		}
		return tv, m[:2]
	}

	if m := crossRegex.FindStringSubmatchIndex(s); m != nil {
		season, _ := strconv.Atoi(s[m[2]:m[3]])
		episode, _ := strconv.Atoi(s[m[4]:m[5]])
		tv.SeasonNumber = intPtr(season)
		tv.EpisodeNumber = intPtr(episode)
		return tv, m[:2]
	}

	if m := seasonPackRegex.FindStringSubmatchIndex(s); m != nil {
		var season int
		if m[2] != -1 {
			season, _ = strconv.Atoi(s[m[2]:m[3]])
		} else {
			season, _ = strconv.Atoi(s[m[4]:m[5]])
		}
		tv.SeasonNumber = intPtr(season)
		tv.IsSeasonPack = true
		return tv, m[:2]
	}

	return tv, nil
}

// findYear returns the submatch indexes of the last year token before limit.
// A year at the very start is part of the title ("2001 A Space Odyssey").
func findYear(s string, limit int) []int {
	var found []int
	for _, m := range yearRegex.FindAllStringSubmatchIndex(s, -1) {
		if m[2] == 0 || m[0] >= limit {
			continue
		}
		found = m
	}
	return found
}

// episodeTitle returns the text between the episode token and the next quality token
func episodeTitle(s string, from, groupStart int) string {
	end, _ := tokenBounds(s, from, resolutionTokens, sourceTokens, codecTokens, markerTokens, editionTokens)
	if end == -1 {
		end = len(s)
		if groupStart > from {
			end = groupStart
		}
	}
	if yl := findYear(s[from:end], end-from); yl != nil && yl[0] > 0 {
		end = from + yl[0]
	}
	return cleanTitle(s[from:end])
}

func parseMusic(p *ParsedRelease, s string, titleEnd int) MusicDetails {
	var d MusicDetails
	head := s
	if titleEnd != -1 {
		head = s[:titleEnd]
	}

	if m := discRegex.FindStringSubmatchIndex(head); m != nil {
		disc, _ := strconv.Atoi(head[m[2]:m[3]])
		d.DiscNumber = intPtr(disc)
		head = head[:m[0]]
	}

	// "Artist - Album" unless the left side is a bare track number ("01 - Song")
	if artist, album, ok := splitCredit(head); ok && !isNumeric(artist) {
		d.Artist = artist
		d.Album = album
		p.Title = album
		return d
	}

	if m := trackRegex.FindStringSubmatch(strings.TrimSpace(head)); m != nil {
		if m[1] != "" {
			disc, _ := strconv.Atoi(m[1])
			d.DiscNumber = intPtr(disc)
		}
		track, _ := strconv.Atoi(m[2])
		d.TrackNumber = intPtr(track)
		d.TrackTitle = cleanTitle(m[3])
		if d.TrackTitle != "" {
			p.Title = d.TrackTitle
		}
		return d
	}

	if t := cleanTitle(head); t != "" {
		d.Album = t
	}
	return d
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseBook(p *ParsedRelease, s, ext string) BookDetails {
	var d BookDetails

	if m := isbnTagRegex.FindStringSubmatchIndex(s); m != nil {
		if isbn := normalizeISBN(s[m[2]:m[3]]); isbn != "" {
			d.ISBN = isbn
			if t := cleanTitle(s[:m[0]]); t != "" && len(t) < len(p.Title) {
				p.Title = t
			}
		}
	}
	if d.ISBN == "" {
		if m := isbnBareRegex.FindStringSubmatch(s); m != nil {
			d.ISBN = normalizeISBN(m[1])
		}
	}

	if hasExtension(models.MediaTypeBook, ext) {
		d.Format = strings.ToUpper(ext)
	} else {
		d.Format, _ = matchFirst(bookFormatTokens, s)
	}

	if author, title, ok := splitCredit(p.Title); ok {
		d.Author = author
		p.Title = title
	}
	return d
}

// splitCredit splits "Artist - Album" or "Author - Title" on the first " - "
func splitCredit(s string) (string, string, bool) {
	idx := strings.Index(s, " - ")
	if idx <= 0 {
		return "", "", false
	}
	left, right := cleanTitle(s[:idx]), cleanTitle(s[idx+3:])
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}

// normalizeISBN strips separators and validates the ISBN-10 or ISBN-13 checksum
func normalizeISBN(raw string) string {
	digits := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(raw))
	switch len(digits) {
	case 10:
		sum := 0
		for i, r := range digits {
			var v int
			switch {
			case r == 'X' && i == 9:
				v = 10
			case r >= '0' && r <= '9':
				v = int(r - '0')
			default:
				return ""
			}
			sum += v * (10 - i)
		}
		if sum%11 == 0 {
			return digits
		}
	case 13:
		sum := 0
		for i, r := range digits {
			if r < '0' || r > '9' {
				return ""
			}
			w := 1
			if i%2 == 1 {
				w = 3
			}
			sum += int(r-'0') * w
		}
		if sum%10 == 0 {
			return digits
		}
	}
	return ""
}

// codecFallback asks torrentname for codecs the token list does not know
func codecFallback(title string) string {
	info := torrentname.Parse(title)
	if info == nil {
		return ""
	}
	return info.Codec
}

// cleanTitle turns dotted scene names into a readable title
func cleanTitle(s string) string {
	s = separators.ReplaceAllString(s, " ")
	s = strings.Trim(s, " -[](){}")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// deriveQuality builds the display string matched against quality profile items
func deriveQuality(p ParsedRelease) string {
	switch p.MediaType {
	case models.MediaTypeMusic:
		if p.Codec != "" {
			return strings.ToUpper(p.Codec)
		}
	case models.MediaTypeBook:
		if d, ok := p.Book(); ok && d.Format != "" {
			return d.Format
		}
	}
	parts := make([]string, 0, 2)
	for _, v := range []string{p.Resolution, p.Source} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.ToUpper(strings.Join(parts, " "))
}
