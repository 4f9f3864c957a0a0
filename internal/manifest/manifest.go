// Package manifest decodes package manifests and extracts their declared
// dependency graph.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/starford/raido/internal/zon"
)

// Filename is the manifest file every package declares at its root.
const Filename = "build.zig.zon"

// File is the decoded manifest content this system cares about. Fields
// the subset does not understand are ignored, not rejected.
type File struct {
	Name          string               `json:"name"`
	Version       string               `json:"version"`
	MinZigVersion string               `json:"minimum_zig_version"`
	Paths         pathList             `json:"paths"`
	Dependencies  map[string]DepEntry  `json:"dependencies"`
}

// DepEntry is one raw entry of the dependencies map before
// classification.
type DepEntry struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
	Path string `json:"path"`
	Lazy bool   `json:"lazy"`
}

// pathList tolerates both array-shaped and object-shaped paths: the
// dialect writes the source-path set with struct syntax, so an empty
// set translates to {} while a populated one translates to an array.
type pathList []string

func (p *pathList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*p = arr
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		*p = nil
		return nil
	}
	return fmt.Errorf("manifest: paths is neither array nor object")
}

// Decode translates ZON manifest text and decodes it. The translation
// contract guarantees that any manifest within the supported grammar
// subset yields a JSON document; anything else surfaces here as an
// error for the caller to log and skip.
func Decode(src []byte) (*File, error) {
	jsonText, err := zon.Translate(string(src))
	if err != nil {
		return nil, fmt.Errorf("manifest: translate: %w", err)
	}
	var f File
	if err := json.Unmarshal([]byte(jsonText), &f); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	return &f, nil
}
