// Command doipin pins external datasets to fingerprints recorded in a
// lockfile and fetches them from HTTP, git, shell commands, local files or
// DOI-addressed data repositories.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/jprybylski/doipin/internal/logging"

	// Source handlers register themselves with the fetcher package.
	_ "github.com/jprybylski/doipin/internal/handlers/command"
	_ "github.com/jprybylski/doipin/internal/handlers/doi"
	_ "github.com/jprybylski/doipin/internal/handlers/file"
	_ "github.com/jprybylski/doipin/internal/handlers/git"
	_ "github.com/jprybylski/doipin/internal/handlers/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logging.ConfigureFromEnv()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		stop()
		os.Exit(ee.code)
	}
	logging.Error(err.Error())
	stop()
	os.Exit(2)
}
