package parser

import (
	"regexp"
	"strings"

	"github.com/amaumene/grabarr/internal/models"
)

type token struct {
	name string
	re   *regexp.Regexp
}

var resolutionTokens = []token{
	{"2160p", regexp.MustCompile(`(?i)\b(?:2160p|4k|uhd)\b`)},
	{"1080p", regexp.MustCompile(`(?i)\b1080[pi]\b`)},
	{"720p", regexp.MustCompile(`(?i)\b720p\b`)},
	{"576p", regexp.MustCompile(`(?i)\b576[pi]\b`)},
	{"480p", regexp.MustCompile(`(?i)\b480[pi]\b`)},
}

// Order matters: the first entry that matches anywhere in the title wins,
// regardless of where the other tokens appear.
var sourceTokens = []token{
	{"BLURAY", regexp.MustCompile(`(?i)\b(?:blu-?ray|bdrip|brrip|bdremux|bd25|bd50)\b`)},
	{"WEB-DL", regexp.MustCompile(`(?i)\bweb[-. ]?dl\b`)},
	{"WEBRIP", regexp.MustCompile(`(?i)\bweb[-. ]?rip\b`)},
	{"HDTV", regexp.MustCompile(`(?i)\b(?:hdtv|pdtv|sdtv|tvrip)\b`)},
	{"DVD", regexp.MustCompile(`(?i)\bdvd(?:rip|r|5|9)?\b`)},
	{"AMZN", regexp.MustCompile(`(?i)\bamzn\b`)},
	{"NF", regexp.MustCompile(`(?i)\bnf\b`)},
	{"WEB", regexp.MustCompile(`(?i)\bweb\b`)},
}

var codecTokens = []token{
	{"x265", regexp.MustCompile(`(?i)\b(?:x\.?265|h\.?265|hevc)\b`)},
	{"x264", regexp.MustCompile(`(?i)\b(?:x\.?264|h\.?264|avc)\b`)},
	{"XviD", regexp.MustCompile(`(?i)\bxvid\b`)},
	{"DivX", regexp.MustCompile(`(?i)\bdivx\b`)},
	{"AV1", regexp.MustCompile(`(?i)\bav1\b`)},
	{"VP9", regexp.MustCompile(`(?i)\bvp9\b`)},
	{"FLAC", regexp.MustCompile(`(?i)\bflac\b`)},
	{"ALAC", regexp.MustCompile(`(?i)\balac\b`)},
	{"MP3", regexp.MustCompile(`(?i)\bmp3\b`)},
	{"AAC", regexp.MustCompile(`(?i)\baac(?:[257]\.[01])?\b`)},
	{"OPUS", regexp.MustCompile(`(?i)\bopus\b`)},
}

var bookFormatTokens = []token{
	{"EPUB", regexp.MustCompile(`(?i)\bepub\b`)},
	{"AZW3", regexp.MustCompile(`(?i)\bazw3\b`)},
	{"MOBI", regexp.MustCompile(`(?i)\bmobi\b`)},
	{"PDF", regexp.MustCompile(`(?i)\bpdf\b`)},
	{"M4B", regexp.MustCompile(`(?i)\bm4b\b`)},
	{"CBZ", regexp.MustCompile(`(?i)\bcbz\b`)},
}

// Tokens that carry no quality information but still end a title
var markerTokens = []token{
	{"proper", regexp.MustCompile(`(?i)\b(?:proper|repack|rerip|internal)\b`)},
	{"language", regexp.MustCompile(`(?i)\b(?:multi|dual|vostfr|truefrench|subbed|dubbed)\b`)},
	{"hdr", regexp.MustCompile(`(?i)\b(?:hdr10\+?|hdr|dv|dovi|10bit|8bit)\b`)},
	{"audio", regexp.MustCompile(`(?i)\b(?:ddp?\+?[257]\.[01]|dts(?:-?hd)?|truehd|atmos|ac3|eac3)\b`)},
	{"remux", regexp.MustCompile(`(?i)\bremux\b`)},
	{"complete", regexp.MustCompile(`(?i)\b(?:complete|retail)\b`)},
}

var editionTokens = []token{
	{"Directors Cut", regexp.MustCompile(`(?i)\bdirector'?s[ .]cut\b`)},
	{"Extended", regexp.MustCompile(`(?i)\bextended(?:[ .](?:edition|cut))?\b`)},
	{"Unrated", regexp.MustCompile(`(?i)\bunrated\b`)},
	{"Theatrical", regexp.MustCompile(`(?i)\btheatrical(?:[ .]cut)?\b`)},
	{"Remastered", regexp.MustCompile(`(?i)\bremastered\b`)},
	{"IMAX", regexp.MustCompile(`(?i)\bimax\b`)},
}

var fileExtensions = map[models.MediaType][]string{
	models.MediaTypeTV:    {"mkv", "mp4", "avi", "m4v", "wmv", "mov", "ts", "webm", "mpg", "mpeg"},
	models.MediaTypeMovie: {"mkv", "mp4", "avi", "m4v", "wmv", "mov", "ts", "webm", "mpg", "mpeg"},
	models.MediaTypeMusic: {"flac", "mp3", "m4a", "aac", "ogg", "opus", "wav", "ape", "wma"},
	models.MediaTypeBook:  {"epub", "mobi", "azw3", "azw", "pdf", "cbz", "cbr", "m4b", "djvu", "fb2"},
}

var extensionRegex = regexp.MustCompile(`\.([A-Za-z0-9]{2,4})$`)

// stripExtension removes a known media file extension and returns it lowercased.
// Upper-case audio and ebook suffixes ("Album.2020.FLAC") are release tags, not
// extensions, and are kept.
func stripExtension(s string) (string, string) {
	m := extensionRegex.FindStringSubmatch(s)
	if m == nil {
		return s, ""
	}
	ext := strings.ToLower(m[1])
	if m[1] == strings.ToUpper(m[1]) && !hasExtension(models.MediaTypeMovie, ext) {
		return s, ""
	}
	for _, mt := range models.MediaTypes {
		if hasExtension(mt, ext) {
			return s[:len(s)-len(m[0])], ext
		}
	}
	return s, ""
}

func hasExtension(mediaType models.MediaType, ext string) bool {
	for _, e := range fileExtensions[mediaType] {
		if e == ext {
			return true
		}
	}
	return false
}

// IsMediaFile reports whether name has a file extension used by the media type
func IsMediaFile(name string, mediaType models.MediaType) bool {
	m := extensionRegex.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	return hasExtension(mediaType, strings.ToLower(m[1]))
}

// matchFirst returns the first token in list order that matches s
func matchFirst(tokens []token, s string) (string, []int) {
	for _, t := range tokens {
		if loc := t.re.FindStringIndex(s); loc != nil {
			return t.name, loc
		}
	}
	return "", nil
}

// tokenBounds returns the start of the earliest match at or after from and
// the end of the latest match across all lists, or -1 when nothing matches.
func tokenBounds(s string, from int, lists ...[]token) (int, int) {
	first, last := -1, -1
	for _, tokens := range lists {
		for _, t := range tokens {
			for _, loc := range t.re.FindAllStringIndex(s, -1) {
				if loc[0] < from {
					continue
				}
				if first == -1 || loc[0] < first {
					first = loc[0]
				}
				if loc[1] > last {
					last = loc[1]
				}
			}
		}
	}
	return first, last
}
