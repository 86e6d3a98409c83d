package docstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// fileOptions is the on-disk shape LoadOptions parses, kept separate from
// Options because Options carries unmarshalable fields (Logger, Clock).
type fileOptions struct {
	BaseDir         string `json:"base_dir"`
	Lock            bool   `json:"lock"`
	SnapshotOnClose bool   `json:"snapshot_on_close"` //nolint:tagliatelle
}

// LoadOptions reads a JSONC (JSON-with-comments) options file at path and
// returns the Options it describes. Lock defaults to true unless the file
// sets "lock": false explicitly. Logger and Clock are left nil (their
// OpenWithOptions defaults apply); callers needing non-default values set
// them on the returned Options themselves.
//
// Recognized keys: base_dir (string, required, non-empty), lock (bool,
// default true), snapshot_on_close (bool, default false).
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return Options{}, fmt.Errorf("docstore: load options: %w: %w", ErrIO, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Options{}, fmt.Errorf("docstore: load options: %w: invalid JSONC in %s: %w", ErrInvalidArgument, path, err)
	}

	fo := fileOptions{Lock: true}
	if err := json.Unmarshal(standardized, &fo); err != nil {
		return Options{}, fmt.Errorf("docstore: load options: %w: invalid JSON in %s: %w", ErrInvalidArgument, path, err)
	}

	if fo.BaseDir == "" {
		return Options{}, fmt.Errorf("docstore: load options: %w: %s: base_dir must be non-empty", ErrInvalidArgument, path)
	}

	return Options{
		BaseDir:         fo.BaseDir,
		Lock:            fo.Lock,
		SnapshotOnClose: fo.SnapshotOnClose,
	}, nil
}
