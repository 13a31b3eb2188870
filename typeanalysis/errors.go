package typeanalysis

import "errors"

var (
	// ErrNilList is returned when no instruction list is given.
	ErrNilList = errors.New("instruction list is nil")
	// ErrUnbalanced is returned when Begin and End markers do not nest.
	ErrUnbalanced = errors.New("unbalanced block markers")
)
