package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams is the parsed page/per_page pair from a list request.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page from the query string. Missing or
// malformed values fall back to page=1, per_page=50; per_page is capped at
// 200.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{Page: defaultPage, PerPage: defaultPerPage}

	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		p.PerPage = n
		if p.PerPage > maxPerPage {
			p.PerPage = maxPerPage
		}
	}

	return p
}

// Offset returns the row offset for the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages returns how many pages a result set of total rows spans.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}
