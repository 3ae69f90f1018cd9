package databases

import "go.mongodb.org/mongo-driver/mongo/options"

// Listing bounds shared by the mongo and memory stores
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxListPage      = 10000
)

type mongoPaginate struct {
	limit int64
	page  int64
}

func newMongoPaginate(limit, page int) *mongoPaginate {
	limit, page = normalizePage(limit, page)
	return &mongoPaginate{
		limit: int64(limit),
		page:  int64(page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	skip := mp.page*mp.limit - mp.limit
	return options.Find().SetLimit(mp.limit).SetSkip(skip)
}

// normalizePage clamps limit to [1, MaxListLimit] with DefaultListLimit for
// zero, and page to [1, MaxListPage], so the skip never overflows
func normalizePage(limit, page int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	switch {
	case page < 1:
		page = 1
	case page > MaxListPage:
		page = MaxListPage
	}
	return limit, page
}
