package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jprybylski/doipin/internal/fetcher"
	doihandler "github.com/jprybylski/doipin/internal/handlers/doi"
	"github.com/jprybylski/doipin/internal/logging"
)

const envPrefix = "DOIPIN"

// exitError carries a process exit code out of a command.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

// settings reads flags and DOIPIN_* environment variables through v.
type settings struct{ v *viper.Viper }

func (s settings) config() string         { return s.v.GetString("config") }
func (s settings) lock() string           { return s.v.GetString("lock") }
func (s settings) proxy() string          { return s.v.GetString("doi-proxy") }
func (s settings) timeout() time.Duration { return s.v.GetDuration("timeout") }

func (s settings) doiHandler() fetcher.Fetcher {
	return doihandler.NewWithClient(&http.Client{Timeout: s.timeout()}, s.proxy())
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	s := settings{v: v}

	root := &cobra.Command{
		Use:           "doipin",
		Short:         "Verify and fetch pinned external data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetLevel(v.GetString("log-level"))
			// doi sources in check and fetch use the configured proxy and timeout
			fetcher.Register(s.doiHandler())
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", ".data.yaml", "path to config YAML")
	pf.String("lock", ".data.lock.yaml", "path to lock YAML")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("doi-proxy", "https://doi.org", "DOI proxy used to resolve DOIs")
	pf.Duration("timeout", 30*time.Second, "timeout for each repository request")
	for _, name := range []string{"config", "lock", "log-level", "doi-proxy", "timeout"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newCheckCmd(s),
		newFetchCmd(s),
		newRegistryCmd(s),
		newURLCmd(s),
		newVersionCmd(),
	)
	return root
}
