// Package parser turns dropped file paths into cover references.
//
// Recognized layouts (case-insensitive):
//
//	Name (Year)/poster.jpg          movie or show poster
//	Name (Year)/backdrop.jpg        backdrop (also background, fanart)
//	Name (Year)/Season01.jpg        season poster (also "Season 1", "Specials")
//	Name (Year)/S01E02.jpg          episode still
//	Name (Year).jpg                 poster
//	Name (Year) - S01E02.jpg        flat episode
//	Name (Year) - Season 1.jpg      flat season (also "- Specials")
//	Name (Year) - Backdrop.jpg      flat backdrop
//	Name.jpg                        collection
//
// Parsing is pure: the same path always yields the same reference.
package parser

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
)

// Failure reasons.
const (
	ReasonUnsupportedExt = "unsupported extension"
	ReasonEmptyPath      = "empty path"
	ReasonUnrecognized   = domain.ReasonUnrecognized
	ReasonMissingYear    = domain.ReasonMissingYear
)

// ParseError reports a path that does not follow a recognized convention.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Path, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, errors.ErrParse).
func (e *ParseError) Unwrap() error {
	return domainerrors.ErrParse
}

var supportedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// SupportedImage reports whether name has an image extension the parser accepts.
func SupportedImage(name string) bool {
	return supportedExt[strings.ToLower(path.Ext(name))]
}

var (
	titleYearRe = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)$`)
	flatRe      = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)\s*-\s*(.+)$`)
	flatNoYear  = regexp.MustCompile(`(?i)^(.+?)\s+-\s+(s\d{1,3}\s*e\d{1,4}|season\s*\d{1,3}|specials|backdrop|background|fanart)$`)
	episodeRe   = regexp.MustCompile(`(?i)^s(\d{1,3})\s*e(\d{1,4})$`)
	seasonRe    = regexp.MustCompile(`(?i)^season\s*(\d{1,3})$`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

var collectionMarkers = []string{"collection", "filmreihe"}

// Parse parses a slash or OS separated path relative to the intake root.
// A reference whose year is missing is returned alongside a ParseError with
// ReasonMissingYear so callers can still record what was recognized.
func Parse(relPath string) (domain.CoverReference, error) {
	clean := strings.ReplaceAll(relPath, `\`, "/")
	var parts []string
	for p := range strings.SplitSeq(clean, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return domain.CoverReference{}, &ParseError{Path: relPath, Reason: ReasonEmptyPath}
	}

	file := parts[len(parts)-1]
	ext := path.Ext(file)
	if !supportedExt[strings.ToLower(ext)] {
		return domain.CoverReference{}, &ParseError{Path: relPath, Reason: ReasonUnsupportedExt}
	}
	stem := tidy(strings.TrimSuffix(file, ext))

	if len(parts) >= 2 {
		if ref, ok, err := parseInFolder(relPath, tidy(parts[len(parts)-2]), stem); ok {
			return ref, err
		}
	}
	return parseFlat(relPath, stem)
}

// parseInFolder handles "<folder>/<slot>.ext". ok is false when the stem is
// not a slot name, in which case the file is parsed on its own.
func parseInFolder(relPath, folder, stem string) (domain.CoverReference, bool, error) {
	ref := domain.CoverReference{SourcePath: relPath}
	lower := strings.ToLower(stem)

	switch {
	case lower == "poster" || lower == "cover" || lower == "folder":
		ref.Kind = domain.KindMovie
	case lower == "backdrop" || lower == "background" || lower == "fanart":
		ref.Kind = domain.KindBackdrop
	case lower == "specials":
		ref.Kind = domain.KindSeason
	case seasonRe.MatchString(stem):
		ref.Kind = domain.KindSeason
		ref.Season = atoi(seasonRe.FindStringSubmatch(stem)[1])
	case episodeRe.MatchString(stem):
		m := episodeRe.FindStringSubmatch(stem)
		ref.Kind = domain.KindEpisode
		ref.Season, ref.Episode = atoi(m[1]), atoi(m[2])
	default:
		return ref, false, nil
	}

	if m := titleYearRe.FindStringSubmatch(folder); m != nil {
		ref.Title, ref.Year = tidy(m[1]), atoi(m[2])
		return ref, true, nil
	}

	ref.Title = folder
	if (ref.Kind == domain.KindMovie || ref.Kind == domain.KindBackdrop) && isCollectionName(folder) {
		if ref.Kind == domain.KindMovie {
			ref.Kind = domain.KindCollection
		}
		return ref, true, nil
	}
	return ref, true, &ParseError{Path: relPath, Reason: ReasonMissingYear}
}

func parseFlat(relPath, stem string) (domain.CoverReference, error) {
	ref := domain.CoverReference{SourcePath: relPath}

	if m := flatRe.FindStringSubmatch(stem); m != nil {
		ref.Title, ref.Year = tidy(m[1]), atoi(m[2])
		if !applySuffix(&ref, tidy(m[3])) {
			return domain.CoverReference{}, &ParseError{Path: relPath, Reason: ReasonUnrecognized}
		}
		return ref, nil
	}

	if m := titleYearRe.FindStringSubmatch(stem); m != nil {
		ref.Kind = domain.KindMovie
		ref.Title, ref.Year = tidy(m[1]), atoi(m[2])
		return ref, nil
	}

	if m := flatNoYear.FindStringSubmatch(stem); m != nil {
		ref.Title = tidy(m[1])
		applySuffix(&ref, tidy(m[2]))
		if ref.Kind == domain.KindBackdrop && isCollectionName(ref.Title) {
			return ref, nil
		}
		return ref, &ParseError{Path: relPath, Reason: ReasonMissingYear}
	}

	if stem == "" || strings.ContainsAny(stem, "()") {
		return domain.CoverReference{}, &ParseError{Path: relPath, Reason: ReasonUnrecognized}
	}
	ref.Kind = domain.KindCollection
	ref.Title = stem
	return ref, nil
}

func applySuffix(ref *domain.CoverReference, suffix string) bool {
	lower := strings.ToLower(suffix)
	switch {
	case lower == "specials":
		ref.Kind, ref.Season = domain.KindSeason, 0
	case lower == "backdrop" || lower == "background" || lower == "fanart":
		ref.Kind = domain.KindBackdrop
	case seasonRe.MatchString(suffix):
		ref.Kind = domain.KindSeason
		ref.Season = atoi(seasonRe.FindStringSubmatch(suffix)[1])
	case episodeRe.MatchString(suffix):
		m := episodeRe.FindStringSubmatch(suffix)
		ref.Kind = domain.KindEpisode
		ref.Season, ref.Episode = atoi(m[1]), atoi(m[2])
	default:
		return false
	}
	return true
}

func isCollectionName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range collectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func tidy(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
