package main

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 34, TotalPages(1000, 30))
	assert.Equal(t, 1, TotalPages(30, 30))
	assert.Equal(t, 2, TotalPages(31, 30))
	assert.Equal(t, 1, TotalPages(0, 30), "an empty result still has one page")
	assert.Equal(t, 1, TotalPages(0, 0), "zero per-page must not divide by zero")
	assert.Equal(t, 5, TotalPages(5, 0), "zero per-page falls back to one item per page")
	assert.Equal(t, 1, TotalPages(-3, 30))
}

func TestClampPage(t *testing.T) {
	assert.Equal(t, 1, ClampPage(0, 10))
	assert.Equal(t, 1, ClampPage(-5, 10))
	assert.Equal(t, 10, ClampPage(11, 10))
	assert.Equal(t, 4, ClampPage(4, 10))
	assert.Equal(t, 1, ClampPage(3, 0))
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 1, ParsePage(""))
	assert.Equal(t, 1, ParsePage("abc"))
	assert.Equal(t, 1, ParsePage("0"))
	assert.Equal(t, 1, ParsePage("-2"))
	assert.Equal(t, 7, ParsePage(" 7 "))
}

func TestListUrl(t *testing.T) {
	assert.Equal(t, "/list?q="+url.QueryEscape("가을")+"&p=2", ListUrl(ModeQuery, "가을", 2))
	assert.Equal(t, "/list?category=photo&p=1", ListUrl(ModeCategory, "photo", 1))
	assert.Equal(t, "/list?q=red+car&p=3", ListUrl(ModeQuery, "red car", 3))
	assert.Equal(t, "/list?p=4", ListUrl(ModeQuery, "", 4))

	u, err := url.Parse(ListUrl(ModeQuery, "가을", 2))
	assert.NoError(t, err)
	assert.Equal(t, "가을", u.Query().Get("q"))
	assert.Equal(t, "2", u.Query().Get("p"))
}

func TestPageNav(t *testing.T) {
	nav := NewPageNav(1, 34)
	assert.False(t, nav.HasPrev)
	assert.True(t, nav.HasNext)
	assert.Equal(t, 1, nav.Prev)
	assert.Equal(t, 2, nav.Next)

	nav = NewPageNav(34, 34)
	assert.True(t, nav.HasPrev)
	assert.False(t, nav.HasNext)
	assert.Equal(t, 33, nav.Prev)
	assert.Equal(t, 34, nav.Next)

	nav = NewPageNav(50, 34)
	assert.Equal(t, 34, nav.Page, "page beyond the last one is clamped")

	nav = NewPageNav(1, 0)
	assert.Equal(t, 1, nav.TotalPages)
	assert.False(t, nav.HasNext)
}
