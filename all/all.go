// Package all imports all supported archive formats.
//
// Import this package for its side effects to register every format:
//
//	import (
//		"github.com/git-pkgs/genpkg/internal/archive"
//		_ "github.com/git-pkgs/genpkg/all"
//	)
//
//	// Now all extensions are available
//	exts := archive.Extensions()
//	// [".tar" ".tar.bz2" ".tar.gz" ".tar.xz" ".tar.zst" ".tbz" ".tbz2" ".tgz" ".txz" ".tzst" ".zip"]
package all

import (
	_ "github.com/git-pkgs/genpkg/internal/archive/tarball"
	_ "github.com/git-pkgs/genpkg/internal/archive/zipfile"
)
