package app

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrSpawn        = errors.New("spawn generator failed")
)
