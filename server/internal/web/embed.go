package web

import "embed"

// Templates contains the embedded HTML templates.
//
//go:embed templates/*.html
var Templates embed.FS
