package config

import "errors"

var (
	// ErrInvalidConfig indicates a configuration file that could not be
	// decoded or holds out-of-range values.
	ErrInvalidConfig = errors.New("invalid configuration")
)
