// Package webui embeds the single-page demo served under /ui/.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// StaticFS returns an http.FileSystem for the embedded static files.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed path is fixed at compile time.
		panic(err)
	}
	return http.FS(sub)
}

// Handler serves the embedded files with prefix stripped from request paths.
func Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(StaticFS()))
}
