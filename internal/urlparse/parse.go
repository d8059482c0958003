// Package urlparse splits source URLs and DOI identifiers into a uniform
// protocol/netloc/path triple.
//
// Plain URLs (http, https, ftp, local paths) are split with net/url. DOIs
// written as "doi:<prefix>/<suffix>/<file>" are split so that Netloc holds the
// DOI and Path holds the trailing file segment. Zenodo DOIs created through the
// GitHub integration may carry extra slashes after the record, so for those
// only the first two segments form the DOI.
package urlparse

import (
	"fmt"
	"net/url"
	"strings"
)

const doiScheme = "doi"

// ParsedURL is the result of Parse. It is a plain value; compare with ==.
type ParsedURL struct {
	Protocol string
	Netloc   string
	Path     string
}

// String reassembles the triple. DOIs render as "doi:<netloc><path>".
func (p ParsedURL) String() string {
	if p.Protocol == doiScheme {
		return doiScheme + ":" + p.Netloc + p.Path
	}
	return p.Protocol + "://" + p.Netloc + p.Path
}

// InvalidIdentifierError reports an identifier that cannot be parsed.
type InvalidIdentifierError struct {
	Identifier string
	Reason     string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Identifier, e.Reason)
}

// Parse splits raw into protocol, netloc and path.
//
// "doi://" identifiers are rejected: a DOI has no authority component.
// A DOI with no slash at all yields an empty Netloc; callers that need a DOI
// must check for that themselves.
func Parse(raw string) (ParsedURL, error) {
	if strings.HasPrefix(raw, "doi://") {
		return ParsedURL{}, &InvalidIdentifierError{
			Identifier: raw,
			Reason:     `DOI must be written as "doi:<identifier>", not "doi://<identifier>"`,
		}
	}
	if rest, ok := strings.CutPrefix(raw, "doi:"); ok {
		return parseDOI(rest), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ParsedURL{}, &InvalidIdentifierError{Identifier: raw, Reason: err.Error()}
	}
	protocol := u.Scheme
	if protocol == "" {
		protocol = "file"
	}
	netloc := u.Host
	if u.User != nil {
		netloc = u.User.String() + "@" + u.Host
	}
	return ParsedURL{Protocol: protocol, Netloc: netloc, Path: u.Path}, nil
}

func parseDOI(rest string) ParsedURL {
	parts := strings.Split(rest, "/")
	if len(parts) > 1 && strings.Contains(strings.ToLower(parts[1]), "zenodo") {
		return ParsedURL{
			Protocol: doiScheme,
			Netloc:   strings.Join(parts[:2], "/"),
			Path:     "/" + strings.Join(parts[2:], "/"),
		}
	}
	last := len(parts) - 1
	return ParsedURL{
		Protocol: doiScheme,
		Netloc:   strings.Join(parts[:last], "/"),
		Path:     "/" + parts[last],
	}
}
