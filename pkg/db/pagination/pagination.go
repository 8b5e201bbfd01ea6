package pagination

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Pagination struct {
	Limit  int `form:"limit,default=20" json:"limit" validate:"gte=0,lte=100"`
	Offset int `form:"offset,default=0" json:"offset" validate:"gte=0"`
}

// Normalize fills the default window and clamps the limit so unbounded
// listings cannot be requested.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// PageInfo is the envelope list endpoints return next to the page data.
// Count is the total number of rows matching the filter, not the page size.
type PageInfo struct {
	Count  int64 `json:"count"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func BuildPageInfo(count int64, p Pagination) PageInfo {
	return PageInfo{Count: count, Limit: p.Limit, Offset: p.Offset}
}
