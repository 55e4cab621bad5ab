package repository

import (
	_ "embed"
)

// Schema creates the stock tables. It is idempotent.
//
//go:embed schema.sql
var Schema string
