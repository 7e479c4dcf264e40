package rank

import "errors"

var (
	ErrNotRanked      = errors.New("user has no score on this board")
	ErrInvalidTokenID = errors.New("invalid token id")
)
