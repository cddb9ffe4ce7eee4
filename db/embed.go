// Package db embeds the SQL migrations and seeds.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed seeds/*.sql
var Seeds embed.FS
