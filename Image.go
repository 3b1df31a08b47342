package main

import (
	"context"
	"fmt"
)

type SearchMode string

const (
	ModeQuery    SearchMode = "query"
	ModeCategory SearchMode = "category"
)

// Categories offered in the hero menu and the header filter, in display order.
var Categories = []string{"Photo", "Illustration", "Template", "Icon", "Sticker"}

// SearchKey identifies one page of results for one search context. Mode is part of
// the key so a query and a category sharing the same literal are cached separately.
type SearchKey struct {
	Mode SearchMode
	Term string
	Page int
}

func (k SearchKey) String() string {
	return fmt.Sprintf("%s:%q#%d", k.Mode, k.Term, k.Page)
}

type ImageSummary struct {
	Id       string `json:"id"`
	Title    string `json:"title"`
	ThumbUrl string `json:"thumb_url"`
}

type ResultPage struct {
	Images     []ImageSummary `json:"images"`
	Page       int            `json:"page"`
	PerPage    int            `json:"limit"`
	TotalCount int            `json:"total_count"`
}

func (p ResultPage) Empty() bool {
	return len(p.Images) == 0
}

// TotalPages never divides by zero and never reports fewer than one page.
func (p ResultPage) TotalPages() int {
	return TotalPages(p.TotalCount, p.PerPage)
}

type DownloadOption struct {
	FileTypeId int     `json:"file_type_id"`
	Extension  string  `json:"extension"`
	Label      string  `json:"label"`
	MimeType   string  `json:"mime_type"`
	FileSizeMb float64 `json:"file_size_mb"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Dpi        int     `json:"dpi"`
}

type ImageDetail struct {
	ImageSummary
	Category        string           `json:"category"`
	PreviewUrl      string           `json:"preview_url"`
	FullUrl         string           `json:"full_url"`
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	Dpi             int              `json:"dpi"`
	FileSizeMb      float64          `json:"file_size_mb"`
	Description     string           `json:"description"`
	License         string           `json:"license"`
	Keywords        []string         `json:"keywords"`
	DownloadOptions []DownloadOption `json:"download_options"`
}

// PrimaryOption is the largest download variant by pixel area, or nil when the
// image has none.
func (d *ImageDetail) PrimaryOption() *DownloadOption {
	var best *DownloadOption
	for i := range d.DownloadOptions {
		opt := &d.DownloadOptions[i]
		if best == nil || opt.Width*opt.Height > best.Width*best.Height {
			best = opt
		}
	}
	return best
}

// FillFromPrimary copies dimensions, dpi and size from the primary download
// option into any top-level field the API left empty.
func (d *ImageDetail) FillFromPrimary() {
	opt := d.PrimaryOption()
	if opt == nil {
		return
	}
	if d.Width == 0 && d.Height == 0 {
		d.Width, d.Height = opt.Width, opt.Height
	}
	if d.Dpi == 0 {
		d.Dpi = opt.Dpi
	}
	if d.FileSizeMb == 0 {
		d.FileSizeMb = opt.FileSizeMb
	}
}

// ImageSearcher is the search collaborator the pager depends on.
type ImageSearcher interface {
	Search(ctx context.Context, key SearchKey, perPage int) (ResultPage, error)
}
