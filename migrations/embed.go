// Package migrations embeds the versioned schema of the urls table.
// Files are grouped per database driver: postgres/ and sqlite/.
package migrations

import "embed"

// FS holds every migration file keyed by "<driver>/<version>_<name>.<up|down>.sql".
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
