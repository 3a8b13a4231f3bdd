// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations assets assets/templates/email/_base.gohtml assets/templates/email/_base.txt
var FS embed.FS
