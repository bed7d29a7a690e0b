package view

// DefaultPageSize is the page size for wide viewports.
const DefaultPageSize = 10

// PageSizeFor maps a viewport width in CSS pixels to a suggested page size.
func PageSizeFor(width int) int {
	switch {
	case width <= 400:
		return 3
	case width <= 480:
		return 4
	case width <= 768:
		return 6
	default:
		return DefaultPageSize
	}
}
