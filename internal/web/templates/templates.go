// Package templates embeds the HTML pages served by the web package.
package templates

import "embed"

//go:embed *.html
var FS embed.FS
