package model

// PagedResult wraps paginated query results.
type PagedResult[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// HasMore reports whether rows remain past this page.
func (p PagedResult[T]) HasMore() bool {
	return p.Offset+len(p.Items) < p.Total
}
