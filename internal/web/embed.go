// ABOUTME: Embeds the demo front-end into the binary using go:embed
// ABOUTME: Provides staticFS rooted at the static directory

package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var embeddedStatic embed.FS

var staticFS = func() fs.FS {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic(err)
	}
	return sub
}()
