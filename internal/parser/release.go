package parser

import "github.com/amaumene/grabarr/internal/models"

// ParsedRelease is the structured form of a release title. Fields shared by
// every media type live on the struct; the rest sit behind Details.
type ParsedRelease struct {
	MediaType    models.MediaType `json:"mediaType"`
	Title        string           `json:"title"`
	Year         *int             `json:"year,omitempty"`
	Resolution   string           `json:"resolution,omitempty"`
	Source       string           `json:"source,omitempty"`
	Codec        string           `json:"codec,omitempty"`
	ReleaseGroup string           `json:"releaseGroup,omitempty"`
	Quality      string           `json:"quality,omitempty"`
	Details      Details          `json:"details"`
}

// Details holds the media-type specific fields. Implemented only by the
// variants in this package.
type Details interface {
	MediaType() models.MediaType
	details()
}

// TVDetails are the fields of an episode or season release
type TVDetails struct {
	SeasonNumber     *int   `json:"seasonNumber,omitempty"`
	EpisodeNumber    *int   `json:"episodeNumber,omitempty"`
	EndEpisodeNumber *int   `json:"endEpisodeNumber,omitempty"`
	IsMultiEpisode   bool   `json:"isMultiEpisode"`
	IsSeasonPack     bool   `json:"isSeasonPack"`
	EpisodeTitle     string `json:"episodeTitle,omitempty"`
}

// MovieDetails are the fields of a movie release
type MovieDetails struct {
	Edition string `json:"edition,omitempty"`
}

// MusicDetails are the fields of an album or track release
type MusicDetails struct {
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber *int   `json:"trackNumber,omitempty"`
	DiscNumber  *int   `json:"discNumber,omitempty"`
	TrackTitle  string `json:"trackTitle,omitempty"`
}

// BookDetails are the fields of a book release
type BookDetails struct {
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
	Format string `json:"format,omitempty"`
}

func (TVDetails) MediaType() models.MediaType    { return models.MediaTypeTV }
func (MovieDetails) MediaType() models.MediaType { return models.MediaTypeMovie }
func (MusicDetails) MediaType() models.MediaType { return models.MediaTypeMusic }
func (BookDetails) MediaType() models.MediaType  { return models.MediaTypeBook }

func (TVDetails) details()    {}
func (MovieDetails) details() {}
func (MusicDetails) details() {}
func (BookDetails) details()  {}

// emptyDetails returns the zero variant for a media type
func emptyDetails(mt models.MediaType) Details {
	switch mt {
	case models.MediaTypeTV:
		return TVDetails{}
	case models.MediaTypeMusic:
		return MusicDetails{}
	case models.MediaTypeBook:
		return BookDetails{}
	default:
		return MovieDetails{}
	}
}

// TV returns the TV fields, or false when the release is not a TV release
func (p ParsedRelease) TV() (TVDetails, bool) {
	d, ok := p.Details.(TVDetails)
	return d, ok
}

// Movie returns the movie fields, or false when the release is not a movie release
func (p ParsedRelease) Movie() (MovieDetails, bool) {
	d, ok := p.Details.(MovieDetails)
	return d, ok
}

// Music returns the music fields, or false when the release is not a music release
func (p ParsedRelease) Music() (MusicDetails, bool) {
	d, ok := p.Details.(MusicDetails)
	return d, ok
}

// Book returns the book fields, or false when the release is not a book release
func (p ParsedRelease) Book() (BookDetails, bool) {
	d, ok := p.Details.(BookDetails)
	return d, ok
}

func intPtr(v int) *int { return &v }
