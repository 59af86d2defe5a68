package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/coversync/coversync-server/internal/domain"
)

const summaryPageSize = 1000

// signatureFields are the fields signature reads. Both the summary and the
// chunk request them so the two agree on an item's signature.
const signatureFields = "Etag,Name,ProductionYear,Path,DateLastMediaAdded"

type rawItem struct {
	ID                string `json:"Id"`
	Name              string `json:"Name"`
	OriginalTitle     string `json:"OriginalTitle"`
	Type              string `json:"Type"`
	ProductionYear    int    `json:"ProductionYear"`
	ParentID          string `json:"ParentId"`
	SeriesID          string `json:"SeriesId"`
	IndexNumber       *int   `json:"IndexNumber"`
	ParentIndexNumber *int   `json:"ParentIndexNumber"`
	Path              string `json:"Path"`
	Etag              string `json:"Etag"`
	DateModified      string `json:"DateLastMediaAdded"`
}

type itemsResponse struct {
	Items            []rawItem `json:"Items"`
	TotalRecordCount int       `json:"TotalRecordCount"`
}

type virtualFolder struct {
	Name      string   `json:"Name"`
	ItemID    string   `json:"ItemId"`
	Locations []string `json:"Locations"`
}

var (
	trailingYearRe = regexp.MustCompile(`\s*\(\d{4}\)$`)
	parenRe        = regexp.MustCompile(`\([^)]*\)`)
	bracketRe      = regexp.MustCompile(`\[[^\]]*\]`)
	seasonNumRe    = regexp.MustCompile(`(\d+)\s*$`)
)

// CleanName removes a trailing "(YYYY)", any other parenthesized text and
// bracketed provider tags such as "[imdbid-tt0111161]".
func CleanName(name string) string {
	name = trailingYearRe.ReplaceAllString(name, "")
	name = parenRe.ReplaceAllString(name, "")
	name = bracketRe.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

func (c *Client) itemTypes() string {
	types := "Movie,Series,Season,BoxSet"
	if c.includeEpisodes {
		types += ",Episode"
	}
	return types
}

func (c *Client) itemsQuery(offset, limit int, fields string) url.Values {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("IncludeItemTypes", c.itemTypes())
	q.Set("Fields", fields)
	q.Set("SortBy", "SortName")
	q.Set("SortOrder", "Ascending")
	q.Set("EnableImages", "false")
	q.Set("StartIndex", strconv.Itoa(offset))
	q.Set("Limit", strconv.Itoa(limit))
	return q
}

func (c *Client) fetchItems(ctx context.Context, op string, q url.Values) (*itemsResponse, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/Items", q, nil, "")
	if err != nil {
		return nil, wrapError(op, "", err)
	}
	var resp itemsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, wrapError(op, "", fmt.Errorf("decode items: %w", err))
	}
	return &resp, nil
}

// FetchSummary returns every item's id and content signature.
func (c *Client) FetchSummary(ctx context.Context) ([]domain.Signature, error) {
	var out []domain.Signature
	for offset := 0; ; offset += summaryPageSize {
		resp, err := c.fetchItems(ctx, "summary", c.itemsQuery(offset, summaryPageSize, signatureFields))
		if err != nil {
			return nil, err
		}
		for _, it := range resp.Items {
			out = append(out, domain.Signature{ID: it.ID, Signature: signature(it)})
		}
		if len(resp.Items) < summaryPageSize {
			return out, nil
		}
	}
}

// FetchChunk returns the mappable items of the server page at offset. The
// chunk is last when the server page is short, however many items were
// dropped.
func (c *Client) FetchChunk(ctx context.Context, offset, limit int) (domain.Chunk, error) {
	if offset == 0 {
		if err := c.refreshLibraries(ctx); err != nil {
			c.logger.Warn("could not list libraries, library blacklist disabled for this refresh", "error", err)
		}
	}

	resp, err := c.fetchItems(ctx, "items", c.itemsQuery(offset, limit,
		signatureFields+",OriginalTitle,ParentId"))
	if err != nil {
		return domain.Chunk{}, err
	}

	out := make([]domain.LibraryEntry, 0, len(resp.Items))
	for _, it := range resp.Items {
		e, ok := c.toEntry(it)
		if !ok {
			c.logger.Debug("skipping unsupported item", "id", it.ID, "type", it.Type)
			continue
		}
		out = append(out, e)
	}
	return domain.Chunk{Entries: out, Last: len(resp.Items) < limit}, nil
}

func (c *Client) toEntry(it rawItem) (domain.LibraryEntry, bool) {
	if it.ID == "" {
		return domain.LibraryEntry{}, false
	}
	e := domain.LibraryEntry{
		ID:               it.ID,
		PrimaryTitle:     CleanName(it.Name),
		Year:             it.ProductionYear,
		ContentSignature: signature(it),
		LibraryID:        c.libraryFor(it.Path),
	}
	if orig := CleanName(it.OriginalTitle); orig != "" && orig != e.PrimaryTitle {
		e.AlternateTitles = []string{orig}
	}

	switch it.Type {
	case "Movie":
		e.Kind = domain.KindMovie
	case "Series":
		e.Kind = domain.KindShow
	case "BoxSet":
		e.Kind = domain.KindCollection
	case "Season":
		e.Kind = domain.KindSeason
		e.ParentID = firstNonEmpty(it.SeriesID, it.ParentID)
		e.Season = seasonNumber(it)
	case "Episode":
		e.Kind = domain.KindEpisode
		e.ParentID = it.SeriesID
		if it.ParentIndexNumber != nil {
			e.Season = *it.ParentIndexNumber
		}
		if it.IndexNumber != nil {
			e.Episode = *it.IndexNumber
		}
	default:
		return domain.LibraryEntry{}, false
	}
	if e.Titled() {
		e.FolderPath = domain.DefaultFolder(e.PrimaryTitle, e.Year, e.Kind)
	}
	return e, true
}

func seasonNumber(it rawItem) int {
	if it.IndexNumber != nil {
		return *it.IndexNumber
	}
	if strings.HasPrefix(strings.ToLower(it.Name), "specials") {
		return 0
	}
	if m := seasonNumRe.FindStringSubmatch(it.Name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// signature prefers the server Etag and falls back to a hash of the fields
// that change when the item is re-identified.
func signature(it rawItem) string {
	if it.Etag != "" {
		return it.Etag
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s|%s", it.Name, it.ProductionYear, it.Path, it.DateModified)
	return "h" + strconv.FormatUint(h.Sum64(), 16)
}

func (c *Client) refreshLibraries(ctx context.Context) error {
	data, err := c.doRequest(ctx, http.MethodGet, "/Library/VirtualFolders", nil, nil, "")
	if err != nil {
		return wrapError("libraries", "", err)
	}
	var folders []virtualFolder
	if err := json.Unmarshal(data, &folders); err != nil {
		return wrapError("libraries", "", fmt.Errorf("decode libraries: %w", err))
	}
	c.libMu.Lock()
	c.libraries = folders
	c.libMu.Unlock()
	return nil
}

// libraryFor returns the name of the library whose location contains path.
func (c *Client) libraryFor(path string) string {
	if path == "" {
		return ""
	}
	c.libMu.Lock()
	defer c.libMu.Unlock()
	for _, lib := range c.libraries {
		for _, loc := range lib.Locations {
			loc = filepath.Clean(loc)
			if path == loc || strings.HasPrefix(path, loc+string(filepath.Separator)) || strings.HasPrefix(path, loc+"/") {
				return lib.Name
			}
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
