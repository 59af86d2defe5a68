package store

import (
	"encoding/base64"
	"fmt"
)

// PaginationParams contains pagination request parameters.
type PaginationParams struct {
	Limit  int    // Items per page (defaults to 100 with a maximum of 1000)
	Cursor string // Opaque cursor for the next page (empty for the first page)
}

// PaginatedResult contains paginated data and metadata.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"` // Empty if no more pages
	HasMore    bool   `json:"has_more"`
	Total      int    `json:"total"`
}

// DefaultPaginationParams returns the first page with the default limit.
func DefaultPaginationParams() PaginationParams {
	return PaginationParams{Limit: 100}
}

// Validate clamps the limit.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
}

// EncodeCursor creates an opaque cursor from the last key of a page.
func EncodeCursor(key string) string {
	if key == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor decodes a cursor back to a key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}

	return string(decoded), nil
}

// Paginate returns the page of items after the cursor. items must be sorted
// by key ascending; key extracts it.
func Paginate[T any](items []T, params PaginationParams, key func(T) string) (*PaginatedResult[T], error) {
	params.Validate()
	after, err := DecodeCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	start := 0
	if after != "" {
		for start < len(items) && key(items[start]) <= after {
			start++
		}
	}

	end := min(start+params.Limit, len(items))
	page := make([]T, 0, end-start)
	page = append(page, items[start:end]...)

	res := &PaginatedResult[T]{Items: page, Total: len(items)}
	if end < len(items) && len(page) > 0 {
		res.HasMore = true
		res.NextCursor = EncodeCursor(key(page[len(page)-1]))
	}
	return res, nil
}
