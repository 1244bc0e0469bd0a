package domain

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a window of a listing. Number is zero based; the zero value is
// the first page of DefaultPageSize items.
type Page struct {
	Number int
	Size   int
}

func NewPage(number, size int) (Page, error) {
	var v ValidationError
	if number < 0 {
		v.Add("page", "must not be negative")
	}
	if size < 0 || size > MaxPageSize {
		v.Add("size", "must be between 1 and 100")
	}
	if err := v.Err(); err != nil {
		return Page{}, err
	}
	return Page{Number: number, Size: size}, nil
}

// Limit is the page size with the default applied.
func (p Page) Limit() int {
	switch {
	case p.Size <= 0:
		return DefaultPageSize
	case p.Size > MaxPageSize:
		return MaxPageSize
	}
	return p.Size
}

func (p Page) Offset() int {
	if p.Number <= 0 {
		return 0
	}
	return p.Number * p.Limit()
}

// Window returns the part of items, already ordered, that falls on page p.
func Window[T any](items []T, p Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return items[:0]
	}
	end := start + p.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
