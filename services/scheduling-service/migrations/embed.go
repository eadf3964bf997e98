// Package migrations embeds the scheduling schema for the migrate command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
