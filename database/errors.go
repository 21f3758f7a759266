package database

import "errors"

var (
	ErrInvalidConfig     = errors.New("database: dsn is required")
	ErrUnsupportedDriver = errors.New("database: driver must be mysql, postgres or sqlite")
)
