package core

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination is a 1-based page window. The zero value means "no pagination".
type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) IsZero() bool { return p.Page == 0 && p.PageSize == 0 }

// Normalize clamps Page and PageSize to sane values.
func (p Pagination) Normalize() Pagination {
	if p.IsZero() {
		return p
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	} else if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Pagination) Limit() int  { return p.PageSize }
func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }
