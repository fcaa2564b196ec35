package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/utils"
)

var (
	// Accents are folded before matching, so "Säsong" is matched as "sasong"
	seasonFolderRegex = regexp.MustCompile(`(?i)^(?:season|saison|staffel|temporada|stagione|seizoen|sezon|sasong|kausi|series|sezona)[ ._-]*(\d{1,4})$`)
	seasonShortRegex  = regexp.MustCompile(`(?i)^s(\d{1,4})$`)
	seasonBareRegex   = regexp.MustCompile(`^(\d{1,2})$`)
	seasonJapanese    = regexp.MustCompile(`^(?:シーズン|第)\s*(\d{1,3})\s*(?:期|シーズン)?$`)
	seasonRomanRegex  = regexp.MustCompile(`(?i)^(?:season|saison|staffel|temporada|stagione|seizoen|sezon|sasong|kausi|series)[ ._-]+([ivxlc]+)$`)
	specialsRegex     = regexp.MustCompile(`(?i)^(?:specials?|extras)$`)
	discFolderRegex   = regexp.MustCompile(`(?i)^(?:cd|disc|disk)[ ._-]*(\d{1,2})$`)
)

// ParsePath parses a file path, merging show/season (or artist/album/disc)
// folder information into the file name result. Folder title and year take
// precedence over the file name only when the folder provides them.
func ParsePath(path string, mediaType models.MediaType) ParsedRelease {
	segments := splitPath(path)
	if len(segments) == 0 {
		return Parse("", mediaType)
	}
	file := Parse(segments[len(segments)-1], mediaType)
	folders := segments[:len(segments)-1]

	switch mediaType {
	case models.MediaTypeTV:
		return mergeTV(file, folders)
	case models.MediaTypeMusic:
		return mergeMusic(file, folders)
	default:
		return mergeSimple(file, folders)
	}
}

// ParseSeasonFolder normalises a season folder name to a season number
func ParseSeasonFolder(name string) (int, bool) {
	// Folding would strip the dakuten from katakana, so match those first
	if m := seasonJapanese.FindStringSubmatch(strings.TrimSpace(name)); m != nil {
		v, _ := strconv.Atoi(m[1])
		return v, true
	}
	n := strings.TrimSpace(utils.FoldAccents(name))
	if specialsRegex.MatchString(n) {
		return 0, true
	}
	for _, re := range []*regexp.Regexp{seasonFolderRegex, seasonShortRegex, seasonBareRegex} {
		if m := re.FindStringSubmatch(n); m != nil {
			v, err := strconv.Atoi(m[1])
			if err == nil {
				return v, true
			}
		}
	}
	if m := seasonRomanRegex.FindStringSubmatch(n); m != nil {
		if v := romanToInt(m[1]); v > 0 {
			return v, true
		}
	}
	return 0, false
}

func mergeTV(file ParsedRelease, folders []string) ParsedRelease {
	tv, _ := file.TV()

	showIdx := len(folders) - 1
	if showIdx >= 0 {
		if season, ok := ParseSeasonFolder(folders[showIdx]); ok {
			if tv.SeasonNumber == nil {
				tv.SeasonNumber = intPtr(season)
			}
			showIdx--
		}
	}

	if showIdx >= 0 {
		folder := Parse(folders[showIdx], models.MediaTypeTV)
		file = overrideFromFolder(file, folder)
		if ftv, ok := folder.TV(); ok {
			if tv.SeasonNumber == nil && ftv.SeasonNumber != nil {
				tv.SeasonNumber = ftv.SeasonNumber
				tv.IsSeasonPack = tv.EpisodeNumber == nil && ftv.IsSeasonPack
			}
			if tv.EpisodeNumber == nil && ftv.EpisodeNumber != nil {
				tv.EpisodeNumber = ftv.EpisodeNumber
				tv.EndEpisodeNumber = ftv.EndEpisodeNumber
				tv.IsMultiEpisode = ftv.IsMultiEpisode
				tv.IsSeasonPack = false
			}
		}
	}

	file.Details = tv
	file.Quality = deriveQuality(file)
	return file
}

func mergeMusic(file ParsedRelease, folders []string) ParsedRelease {
	d, _ := file.Music()

	idx := len(folders) - 1
	if idx >= 0 {
		if m := discFolderRegex.FindStringSubmatch(strings.TrimSpace(folders[idx])); m != nil {
			if d.DiscNumber == nil {
				disc, _ := strconv.Atoi(m[1])
				d.DiscNumber = intPtr(disc)
			}
			idx--
		}
	}

	if idx >= 0 {
		album := Parse(folders[idx], models.MediaTypeMusic)
		if album.Year != nil {
			file.Year = album.Year
		}
		fillQuality(&file, album)
		if ad, ok := album.Music(); ok {
			if ad.Album != "" {
				d.Album = ad.Album
			}
			if ad.Artist != "" {
				d.Artist = ad.Artist
			}
		}
		idx--
	}

	if idx >= 0 && d.Artist == "" {
		if artist := cleanTitle(folders[idx]); artist != "" {
			d.Artist = artist
		}
	}

	file.Details = d
	file.Quality = deriveQuality(file)
	return file
}

// mergeSimple handles movies and books: the nearest folder describes the work
func mergeSimple(file ParsedRelease, folders []string) ParsedRelease {
	if len(folders) == 0 {
		return file
	}
	folder := Parse(folders[len(folders)-1], file.MediaType)
	file = overrideFromFolder(file, folder)

	if file.MediaType == models.MediaTypeBook {
		d, _ := file.Book()
		if fd, ok := folder.Book(); ok {
			if fd.Author != "" {
				d.Author = fd.Author
			}
			if d.ISBN == "" {
				d.ISBN = fd.ISBN
			}
		}
		if d.Author == "" && len(folders) >= 2 {
			d.Author = cleanTitle(folders[len(folders)-2])
		}
		file.Details = d
	}
	if file.MediaType == models.MediaTypeMovie {
		d, _ := file.Movie()
		if fd, ok := folder.Movie(); ok && d.Edition == "" {
			d.Edition = fd.Edition
		}
		file.Details = d
	}

	file.Quality = deriveQuality(file)
	return file
}

// overrideFromFolder applies folder title and year when present, and fills
// quality fields the file name lacks
func overrideFromFolder(file, folder ParsedRelease) ParsedRelease {
	if folder.Title != "" {
		file.Title = folder.Title
	}
	if folder.Year != nil {
		file.Year = folder.Year
	}
	fillQuality(&file, folder)
	return file
}

func fillQuality(file *ParsedRelease, folder ParsedRelease) {
	if file.Resolution == "" {
		file.Resolution = folder.Resolution
	}
	if file.Source == "" {
		file.Source = folder.Source
	}
	if file.Codec == "" {
		file.Codec = folder.Codec
	}
	if file.ReleaseGroup == "" {
		file.ReleaseGroup = folder.ReleaseGroup
	}
}

func splitPath(path string) []string {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	out := parts[:0]
	for _, p := range parts {
		if p != "." && strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func romanToInt(s string) int {
	values := map[rune]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100}
	s = strings.ToLower(s)
	total, prev := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		v := values[rune(s[i])]
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total
}
