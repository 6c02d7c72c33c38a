// Package migrations embeds the collection server's SQL schema so the
// binary can migrate without a checkout next to it.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed server/*.sql
var files embed.FS

// Server returns the server migrations rooted at their directory.
func Server() fs.FS {
	sub, err := fs.Sub(files, "server")
	if err != nil {
		panic(err)
	}
	return sub
}
