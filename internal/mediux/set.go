package mediux

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// File is one image of a set.
type File struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	FileType string `json:"fileType"`
}

// Set is the part of a set page the downloader needs.
type Set struct {
	ID      string `json:"id"`
	SetName string `json:"set_name"`
	Show    *struct {
		Name         string `json:"name"`
		FirstAirDate string `json:"first_air_date"`
	} `json:"show"`
	Collection *struct {
		Name string `json:"collection_name"`
	} `json:"collection"`
	Files []File `json:"files"`
}

var (
	// Next.js streams page data as self.__next_f.push([1,"<id>:<json>"]) scripts.
	pushRe     = regexp.MustCompile(`<script>self\.__next_f\.push(.*?)</script>`)
	suffixRe   = regexp.MustCompile(`(?i)\s*-\s*(s\d+\s*e\d+|season\s*\d+|specials|backdrop|background)\s*$`)
	unsafeRe   = regexp.MustCompile(`[/\\:*?"<>|]`)
	spacesRe   = regexp.MustCompile(`\s+`)
	trailDotRe = regexp.MustCompile(`[.\s]+$`)
)

// ExtractSet finds the set payload among the streamed data chunks of a set
// page.
func ExtractSet(page string) (*Set, error) {
	for _, m := range pushRe.FindAllStringSubmatch(page, -1) {
		chunk := m[1]
		if !strings.Contains(chunk, "set_description") && !strings.Contains(chunk, "original_name") {
			continue
		}
		set, err := decodeChunk(chunk)
		if err != nil {
			return nil, err
		}
		if set != nil {
			return set, nil
		}
	}
	return nil, ErrNoSetData
}

// decodeChunk unquotes the chunk's string argument, drops the "<id>:" row
// prefix and reads the props element of the row.
func decodeChunk(chunk string) (*Set, error) {
	begin, end := strings.Index(chunk, `"`), strings.LastIndex(chunk, `"`)
	if begin < 0 || end <= begin {
		return nil, nil
	}
	var row string
	if err := json.Unmarshal([]byte(chunk[begin:end+1]), &row); err != nil {
		return nil, fmt.Errorf("decode data chunk: %w", err)
	}
	_, body, ok := strings.Cut(row, ":")
	if !ok {
		return nil, nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(body), &parts); err != nil || len(parts) < 4 {
		return nil, nil
	}
	var props struct {
		Set *Set `json:"set"`
	}
	if err := json.Unmarshal(parts[3], &props); err != nil {
		return nil, fmt.Errorf("decode set: %w", err)
	}
	if props.Set == nil || len(props.Set.Files) == 0 {
		return nil, nil
	}
	return props.Set, nil
}

// Name returns the set's display name: the show with its first air year,
// the collection, or the set's own name.
func (s *Set) Name() string {
	var name string
	switch {
	case s.Show != nil && s.Show.Name != "":
		name = s.Show.Name
		if len(s.Show.FirstAirDate) >= 4 {
			name += " (" + s.Show.FirstAirDate[:4] + ")"
		}
	case s.Collection != nil && s.Collection.Name != "":
		name = s.Collection.Name
	case s.SetName != "":
		name = s.SetName
	default:
		name = "Unknown Collection"
	}
	return SafeName(suffixRe.ReplaceAllString(name, ""))
}

// FileName returns the archive entry name of f without extension. Backdrops
// are named after the set so the parser reads them as the set's backdrop.
func (s *Set) FileName(f File) string {
	if f.FileType == "backdrop" {
		return s.Name() + " - Background"
	}
	if name := SafeName(f.Title); name != "" {
		return name
	}
	return SafeName(s.Name() + " " + f.ID)
}

// SafeName strips characters that cannot appear in a file name.
func SafeName(name string) string {
	name = unsafeRe.ReplaceAllString(name, "")
	name = spacesRe.ReplaceAllString(strings.TrimSpace(name), " ")
	return trailDotRe.ReplaceAllString(name, "")
}
