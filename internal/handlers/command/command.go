// Package command serves sources defined by shell commands. The fingerprint
// command's trimmed output is the fingerprint; the fetch command must write
// the content to {{dest}} (also exported as $DEST).
package command

import (
	"context"
	"errors"
	"strings"

	"github.com/jprybylski/doipin/internal/fetcher"
	runrt "github.com/jprybylski/doipin/internal/runtime"
)

type handler struct{}

func New() *handler             { return &handler{} }
func (h *handler) Name() string { return "command" }

func (h *handler) Fingerprint(ctx context.Context, src fetcher.Source) (string, error) {
	if strings.TrimSpace(src.FingerprintCmd) == "" {
		return "", errors.New("command: missing fingerprint_cmd")
	}
	out, err := runrt.RunShell(ctx, substitute(src.FingerprintCmd, src, ""), nil)
	return strings.TrimSpace(out), err
}

func (h *handler) Fetch(ctx context.Context, src fetcher.Source, dest string) error {
	if strings.TrimSpace(src.FetchCmd) == "" {
		return errors.New("command: missing fetch_cmd")
	}
	_, err := runrt.RunShell(ctx, substitute(src.FetchCmd, src, dest), []string{"DEST=" + dest})
	return err
}

func substitute(tmpl string, src fetcher.Source, dest string) string {
	return strings.NewReplacer(
		"{{url}}", src.URL,
		"{{path}}", src.Path,
		"{{ref}}", src.Ref,
		"{{checksum}}", src.Checksum,
		"{{dest}}", dest,
	).Replace(tmpl)
}

func init() {
	fetcher.Register(New())
}
