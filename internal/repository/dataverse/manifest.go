package dataverse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Manifest is the file listing of a dataset's latest version.
type Manifest struct {
	Files []File
}

// File is one entry of a Manifest.
type File struct {
	ID       int64
	Filename string
	// Checksum is "<algo>:<hex>", or empty when the API reported none.
	Checksum string
}

// ParseError reports a dataset response that does not have the expected shape.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dataverse: parse %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("dataverse: parse: missing %s", e.Field)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Wire shape of GET /api/datasets/:persistentId. Pointers mark required fields.
type datasetResponse struct {
	Data *struct {
		LatestVersion *struct {
			Files []struct {
				DataFile *dataFile `json:"dataFile"`
			} `json:"files"`
		} `json:"latestVersion"`
	} `json:"data"`
}

// dataFile carries either the legacy "md5" field, the newer "checksum"
// object, or both depending on the server version.
type dataFile struct {
	ID       *int64 `json:"id"`
	Filename string `json:"filename"`
	MD5      string `json:"md5"`
	Checksum *struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"checksum"`
}

func decodeManifest(r io.Reader) (*Manifest, error) {
	var resp datasetResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, &ParseError{Field: "dataset response", Err: err}
	}
	if resp.Data == nil {
		return nil, &ParseError{Field: "data"}
	}
	if resp.Data.LatestVersion == nil {
		return nil, &ParseError{Field: "data.latestVersion"}
	}

	files := resp.Data.LatestVersion.Files
	m := &Manifest{Files: make([]File, 0, len(files))}
	for i, f := range files {
		field := fmt.Sprintf("data.latestVersion.files[%d].dataFile", i)
		df := f.DataFile
		switch {
		case df == nil:
			return nil, &ParseError{Field: field}
		case df.Filename == "":
			return nil, &ParseError{Field: field + ".filename"}
		case df.ID == nil:
			return nil, &ParseError{Field: field + ".id"}
		}
		m.Files = append(m.Files, File{ID: *df.ID, Filename: df.Filename, Checksum: df.checksum()})
	}
	return m, nil
}

// checksum prefers the generic checksum object and falls back to md5.
func (df *dataFile) checksum() string {
	if df.Checksum != nil && df.Checksum.Value != "" {
		return algoName(df.Checksum.Type) + ":" + df.Checksum.Value
	}
	if df.MD5 != "" {
		return "md5:" + df.MD5
	}
	return ""
}

// algoName turns API checksum types ("MD5", "SHA-1", "SHA-256") into
// lowercase tags without dashes.
func algoName(t string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), "-", "")
}

// byFilename indexes the files by name. A repeated filename keeps the last entry.
func (m *Manifest) byFilename() map[string]File {
	out := make(map[string]File, len(m.Files))
	for _, f := range m.Files {
		out[f.Filename] = f
	}
	return out
}
