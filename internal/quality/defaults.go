package quality

import "github.com/amaumene/grabarr/internal/models"

// Names of the built-in profiles
const (
	DefaultVideoProfile = "standard-video"
	DefaultMusicProfile = "standard-music"
	DefaultBookProfile  = "standard-book"
)

// DefaultProfiles returns the profiles used when none are configured
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name: DefaultVideoProfile,
			Items: []Item{
				{ID: 1, Name: "DVD", Allowed: false},
				{ID: 2, Name: "480P WEBRIP", Allowed: false},
				{ID: 3, Name: "720P HDTV", Allowed: true},
				{ID: 4, Name: "720P WEBRIP", Allowed: true},
				{ID: 5, Name: "720P WEB-DL", Allowed: true},
				{ID: 6, Name: "720P BLURAY", Allowed: true},
				{ID: 7, Name: "1080P HDTV", Allowed: true},
				{ID: 8, Name: "1080P WEBRIP", Allowed: true},
				{ID: 9, Name: "1080P WEB-DL", Allowed: true},
				{ID: 10, Name: "1080P BLURAY", Allowed: true},
				{ID: 11, Name: "2160P WEB-DL", Allowed: true},
				{ID: 12, Name: "2160P BLURAY", Allowed: true},
			},
			Cutoff:         9,
			UpgradeAllowed: true,
		},
		{
			Name: DefaultMusicProfile,
			Items: []Item{
				{ID: 1, Name: "MP3", Allowed: true},
				{ID: 2, Name: "AAC", Allowed: true},
				{ID: 3, Name: "OPUS", Allowed: true},
				{ID: 4, Name: "ALAC", Allowed: true},
				{ID: 5, Name: "FLAC", Allowed: true},
			},
			Cutoff:         5,
			UpgradeAllowed: true,
		},
		{
			Name: DefaultBookProfile,
			Items: []Item{
				{ID: 1, Name: "PDF", Allowed: true},
				{ID: 2, Name: "MOBI", Allowed: true},
				{ID: 3, Name: "AZW3", Allowed: true},
				{ID: 4, Name: "EPUB", Allowed: true},
			},
			Cutoff:         4,
			UpgradeAllowed: false,
		},
	}
}

// DefaultProfileName returns the built-in profile for a media type
func DefaultProfileName(mt models.MediaType) string {
	switch mt {
	case models.MediaTypeMusic:
		return DefaultMusicProfile
	case models.MediaTypeBook:
		return DefaultBookProfile
	default:
		return DefaultVideoProfile
	}
}
