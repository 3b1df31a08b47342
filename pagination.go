package main

import (
	"net/url"
	"strconv"
	"strings"
)

const DefaultPerPage int = 30

func TotalPages(totalCount int, perPage int) int {
	if perPage <= 0 {
		perPage = 1
	}
	pages := (totalCount + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}

func ClampPage(page int, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// ParsePage reads a 1-based page number from a query value. Anything that is not
// a positive integer is page 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ListUrl builds the navigable list URL for a search context. Parameters are
// written in q/category, p order so shared links read naturally.
func ListUrl(mode SearchMode, term string, page int) string {
	var b strings.Builder
	b.WriteString("/list?")
	if term != "" {
		if mode == ModeCategory {
			b.WriteString("category=")
		} else {
			b.WriteString("q=")
		}
		b.WriteString(url.QueryEscape(term))
		b.WriteString("&")
	}
	b.WriteString("p=")
	b.WriteString(strconv.Itoa(page))
	return b.String()
}

// PageNav is what the pager controls render: previous/next targets are already
// clamped to the valid range.
type PageNav struct {
	Page       int
	TotalPages int
	Prev       int
	Next       int
	HasPrev    bool
	HasNext    bool
}

func NewPageNav(page int, totalPages int) PageNav {
	if totalPages < 1 {
		totalPages = 1
	}
	page = ClampPage(page, totalPages)
	return PageNav{
		Page:       page,
		TotalPages: totalPages,
		Prev:       ClampPage(page-1, totalPages),
		Next:       ClampPage(page+1, totalPages),
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}
