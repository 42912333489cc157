// Package migrations embeds the structured store schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
