package review

// Reorder removes the page at 1-based fromPos, reinserts it at 1-based toPos,
// and renumbers every page to its new 1-based index. The input slice is not
// modified; the result is a permutation of the input pages with only the
// PageNumber fields and ordering changed.
//
// Positions outside [1, len(pages)] fail with OutOfRangeError. Equal
// positions fail with NoOpError so the caller can surface the mistake instead
// of silently succeeding.
func Reorder(pages []Page, fromPos, toPos int) ([]Page, error) {
	n := len(pages)
	if fromPos < 1 || fromPos > n {
		return nil, &OutOfRangeError{What: "from_position", Value: fromPos, Min: 1, Max: n}
	}
	if toPos < 1 || toPos > n {
		return nil, &OutOfRangeError{What: "to_position", Value: toPos, Min: 1, Max: n}
	}
	if fromPos == toPos {
		return nil, &NoOpError{Op: "reorder", Detail: "source and target positions are equal"}
	}

	out := make([]Page, 0, n)
	out = append(out, pages[:fromPos-1]...)
	out = append(out, pages[fromPos:]...)

	moved := pages[fromPos-1]
	out = append(out[:toPos-1], append([]Page{moved}, out[toPos-1:]...)...)

	for i := range out {
		out[i].PageNumber = i + 1
	}
	return out, nil
}

// ValidatePageOrder checks that pages are numbered exactly 1..len(pages) in
// ascending order with no gaps or duplicates.
func ValidatePageOrder(pages []Page) error {
	for i, p := range pages {
		if p.PageNumber != i+1 {
			return &ValidationError{
				Field:   "pages",
				Message: "page numbers must be contiguous 1..N in order",
			}
		}
	}
	return nil
}

// NumberPages returns a copy of pages renumbered 1..len(pages) in the order
// given. Used at ingestion to assign initial page numbers.
func NumberPages(pages []Page) []Page {
	out := make([]Page, len(pages))
	copy(out, pages)
	for i := range out {
		out[i].PageNumber = i + 1
	}
	return out
}
