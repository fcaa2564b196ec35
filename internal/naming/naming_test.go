package naming

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/models"
)

func TestRenderTV(t *testing.T) {
	v := Values{SeriesTitle: "Breaking Bad", Season: 1, Episode: 1, EpisodeTitle: "Pilot", Quality: "720P BLURAY"}
	got, err := Render(models.MediaTypeTV, DefaultTemplates[models.MediaTypeTV], v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("Breaking Bad", "Season 01", "Breaking Bad - S01E01 - Pilot [720P BLURAY]"), got)

	// Empty values leave no dangling separators
	v.EpisodeTitle = ""
	v.Quality = ""
	got, err = Render(models.MediaTypeTV, DefaultTemplates[models.MediaTypeTV], v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("Breaking Bad", "Season 01", "Breaking Bad - S01E01"), got)

	v.Episode, v.EndEpisode = 1, 3
	got, err = Render(models.MediaTypeTV, "{Series Title} S{Season:00}E{Episode:00}", v)
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad S01E01E02E03", got)
}

func TestRenderOtherMediaTypes(t *testing.T) {
	got, err := Render(models.MediaTypeMovie, DefaultTemplates[models.MediaTypeMovie],
		Values{MovieTitle: "Blade Runner: The Final Cut", Year: 1982, Quality: "1080P BLURAY"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("Blade Runner - The Final Cut (1982)", "Blade Runner - The Final Cut (1982) [1080P BLURAY]"), got)

	got, err = Render(models.MediaTypeMusic, "{Artist Name}/{Album Title}/{Disc}-{Track:00} {Track Title}",
		Values{ArtistName: "AC/DC", AlbumTitle: "Back in Black", Disc: 1, Track: 6, TrackTitle: "Back in Black"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("AC-DC", "Back in Black", "1-06 Back in Black"), got)

	got, err = Render(models.MediaTypeBook, DefaultTemplates[models.MediaTypeBook],
		Values{AuthorName: "Brandon Sanderson", BookTitle: "Mistborn"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("Brandon Sanderson", "Mistborn", "Mistborn"), got)
}

func TestValidate(t *testing.T) {
	for mt, tmpl := range DefaultTemplates {
		assert.NoError(t, Validate(mt, tmpl), mt)
	}

	assert.Error(t, Validate(models.MediaTypeTV, ""))
	assert.Error(t, Validate(models.MediaTypeTV, "/abs/{Series Title}"))
	assert.ErrorIs(t, Validate(models.MediaTypeTV, "../{Series Title}"), ErrEscapesRoot)
	assert.Error(t, Validate(models.MediaTypeMovie, "{Series Title}"))
	assert.Error(t, Validate(models.MediaTypeMovie, "{Movie Title"))
}

func TestValuesCannotEscapeRoot(t *testing.T) {
	rel, err := Render(models.MediaTypeMovie, "{Movie Title}", Values{MovieTitle: "../../etc/passwd"})
	require.NoError(t, err)

	root := filepath.Join(t.TempDir(), "movies")
	path, err := SafeJoin(root, rel)
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(path))
}

func TestSafeJoin(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tv")

	path, err := SafeJoin(root, filepath.Join("Show", "Season 01", "file.mkv"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Show", "Season 01", "file.mkv"), path)

	_, err = SafeJoin(root, filepath.Join("..", "elsewhere"))
	assert.ErrorIs(t, err, ErrEscapesRoot)

	_, err = SafeJoin("", "file")
	assert.Error(t, err)
}
