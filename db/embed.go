// Package db provides the embedded database schema and default seed data.
package db

import _ "embed"

// Schema contains the DDL statements for the products and cart_lines tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// DefaultProducts is the catalog seeded into an empty local store.
//
//go:embed seed/products.json
var DefaultProducts []byte
