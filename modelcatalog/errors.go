package modelcatalog

import "errors"

var (
	// ErrInvalidCatalog indicates a catalog document that cannot be used.
	ErrInvalidCatalog = errors.New("modelcatalog: invalid catalog")
	// ErrFetchFailed indicates a source could not retrieve its catalog.
	ErrFetchFailed = errors.New("modelcatalog: fetch failed")
)
