// filescan recursively inspects files: it tastes content, routes it to
// inspectors, and follows every extracted child until the submission's
// limits or deadline stop it.
//
// Usage:
//
//	filescan scan [flags] <file>...
//	filescan backend
//	filescan watch [flags] <dir>
//	filescan taste <file>...
//	filescan routes
package main

import (
	"fmt"
	"os"

	_ "github.com/gobeaver/filescan/driver/azure"
	_ "github.com/gobeaver/filescan/driver/gcs"
	_ "github.com/gobeaver/filescan/driver/local"
	_ "github.com/gobeaver/filescan/driver/memory"
	_ "github.com/gobeaver/filescan/driver/minio"
	_ "github.com/gobeaver/filescan/driver/postgres"
	_ "github.com/gobeaver/filescan/driver/s3"
	_ "github.com/gobeaver/filescan/driver/sftp"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
