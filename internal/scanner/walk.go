package scanner

import (
	"os"
	"path/filepath"
)

// walkPrefixes discovers every regular file under the given absolute
// directories, per spec §4.5 FAST phase's "discover every path for the
// requested roots." Unreadable subdirectories are skipped rather than
// aborting the whole walk, matching the reconciler's per-path fault
// tolerance.
func walkPrefixes(prefixes []string) ([]string, error) {
	var out []string
	for _, prefix := range prefixes {
		err := filepath.WalkDir(prefix, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if d.Type()&os.ModeSymlink != 0 {
				return nil
			}
			out = append(out, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
