package appfs

import "embed"

// FS holds the SQL migrations and the assets (email templates, password lists) shipped with the binaries.
//
//go:embed migrations all:assets
var FS embed.FS
