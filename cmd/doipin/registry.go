package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jprybylski/doipin/internal/core"
	doihandler "github.com/jprybylski/doipin/internal/handlers/doi"
	"github.com/jprybylski/doipin/internal/logging"
	"github.com/jprybylski/doipin/internal/repository"
)

// openRepository accepts a bare DOI or one written as "doi:<doi>".
func openRepository(cmd *cobra.Command, s settings, doi string) (repository.Repository, string, error) {
	h := doihandler.NewWithClient(&http.Client{Timeout: s.timeout()}, s.proxy())
	return h.Open(cmd.Context(), strings.TrimSuffix(strings.TrimPrefix(doi, "doi:"), "/"))
}

func newRegistryCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "registry <doi>",
		Short: "List the files of a DOI dataset with their published checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, archiveURL, err := openRepository(cmd, s, args[0])
			if err != nil {
				return err
			}
			reg, err := repo.CreateRegistry(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(reg))
			for name := range reg {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s (%s) %s\n", args[0], repo.Info().Name, archiveURL)
			for _, name := range names {
				fmt.Fprintf(out, "%s %s\n", name, reg[name])
			}
			return nil
		},
	}
}

func newURLCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "url <doi> <file>",
		Short: "Print the download URL of one file of a DOI dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openRepository(cmd, s, args[0])
			if err != nil {
				return err
			}
			u, err := repo.DownloadURL(cmd.Context(), args[1])
			if err != nil {
				logging.Error("no download url", "doi", args[0], "file", args[1], "err", err)
				return exitWith(core.ExitFailure)
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}
