package models

// Page describes one page of a paginated listing.
// Number is 1-based; Total is the number of matching rows.
type Page struct {
	Number int
	Size   int
	Total  int
}

// NewPage clamps number and size to sensible values
func NewPage(number, size int) Page {
	if size <= 0 {
		size = 20
	}
	if number <= 0 {
		number = 1
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of rows to skip
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// NumPages returns the page count, at least 1
func (p Page) NumPages() int {
	if p.Total <= 0 || p.Size <= 0 {
		return 1
	}
	return (p.Total + p.Size - 1) / p.Size
}

func (p Page) HasPrevious() bool {
	return p.Number > 1
}

func (p Page) HasNext() bool {
	return p.Number < p.NumPages()
}

func (p Page) Previous() int {
	return p.Number - 1
}

func (p Page) Next() int {
	return p.Number + 1
}

// ListQuery carries the search term and page of a list request
type ListQuery struct {
	Search string
	Page   Page
}
