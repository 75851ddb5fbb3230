package domain

// PageParams carries page/size values from the HTTP layer to a paged
// upstream such as the news search. Page is 1-indexed.
type PageParams struct {
	Page int
	Size int
}

// NewPageParams builds PageParams from optional query values.
// Nil or non-positive values fall back to page 1 of 20; size is capped at 100.
func NewPageParams(page, size *int) PageParams {
	p := PageParams{Page: 1, Size: 20}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if size != nil && *size >= 1 {
		p.Size = min(*size, 100)
	}
	return p
}
