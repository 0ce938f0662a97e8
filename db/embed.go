// Package db embeds the storefront schema.
package db

import _ "embed"

// Schema contains the idempotent DDL for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string
