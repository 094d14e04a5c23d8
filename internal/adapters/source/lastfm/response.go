package lastfm

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/okian/tunechart/internal/domain/model"
)

type chartResponse struct {
	Artists *chartBody `json:"weeklyartistchart"`
	Tracks  *chartBody `json:"weeklytrackchart"`
	Albums  *chartBody `json:"weeklyalbumchart"`
}

type chartBody struct {
	Artist itemList `json:"artist"`
	Track  itemList `json:"track"`
	Album  itemList `json:"album"`
}

func (r chartResponse) items(c model.Category) []chartItem {
	switch c {
	case model.CategoryArtists:
		if r.Artists != nil {
			return r.Artists.Artist
		}
	case model.CategoryTracks:
		if r.Tracks != nil {
			return r.Tracks.Track
		}
	case model.CategoryAlbums:
		if r.Albums != nil {
			return r.Albums.Album
		}
	}
	return nil
}

type chartItem struct {
	Name      string     `json:"name"`
	Playcount flexString `json:"playcount"`
	Artist    artistRef  `json:"artist"`
}

// itemList accepts a JSON array, a lone object (the API collapses
// single-element lists) or an empty string.
type itemList []chartItem

func (l *itemList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, b[0] == '"', bytes.Equal(b, []byte("null")):
		*l = nil
		return nil
	case b[0] == '{':
		var one chartItem
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*l = itemList{one}
		return nil
	}
	var many []chartItem
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// artistRef is either a bare name or {"#text": name, "mbid": ...}.
type artistRef struct {
	Name string
}

func (a *artistRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &a.Name)
	}
	var obj struct {
		Text string `json:"#text"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	a.Name = obj.Text
	if a.Name == "" {
		a.Name = obj.Name
	}
	return nil
}

// flexString holds a value the API sends as either a string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}
