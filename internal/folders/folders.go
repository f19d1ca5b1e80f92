// Package folders implements the folder-resolution collaborator from spec §6:
// "a folder-resolution service supplying the mapping root_type -> list of
// absolute base directories." It also resolves an upload's destination
// subdirectory from its leading tags, mirroring ComfyUI's folder_paths model
// of tag-named subfolders under the models root.
package folders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

// Resolver answers root->prefixes lookups and destination-path resolution for
// uploads.
type Resolver struct {
	roots map[model.Root][]string
}

// New builds a Resolver from the root->prefixes configuration (spec §6
// "folder-resolution service"). Each prefix is expected to already be an
// absolute, cleaned path; New does not itself touch the filesystem.
func New(roots map[model.Root][]string) *Resolver {
	copied := make(map[model.Root][]string, len(roots))
	for root, prefixes := range roots {
		copied[root] = append([]string(nil), prefixes...)
	}
	return &Resolver{roots: copied}
}

// Prefixes returns the configured absolute base directories for root.
func (r *Resolver) Prefixes(root model.Root) []string {
	return r.roots[root]
}

// AllPrefixes returns every configured prefix across all roots, the input C4
// needs when resolving roots one at a time versus globally (spec §4.4 step 1).
func (r *Resolver) AllPrefixes() []string {
	var out []string
	for _, prefixes := range r.roots {
		out = append(out, prefixes...)
	}
	return out
}

// UnderAnyRoot reports whether abs (already realpath-resolved) lies under one
// of the configured base directories, matched byte-wise with a trailing
// separator (spec §6: "validated by byte-wise prefix + separator match after
// realpath").
func (r *Resolver) UnderAnyRoot(abs string) bool {
	for _, prefixes := range r.roots {
		for _, p := range prefixes {
			if isUnderPrefix(abs, p) {
				return true
			}
		}
	}
	return false
}

func isUnderPrefix(abs, prefix string) bool {
	if abs == prefix {
		return true
	}
	if !strings.HasPrefix(abs, prefix) {
		return false
	}
	return abs[len(prefix)] == filepath.Separator
}

// ResolveUploadDestination picks a base directory from the first two tags
// (e.g. tags = ["models", "checkpoints", ...] -> the configured models folder
// for the "checkpoints" subdirectory), per spec §4.6 upload_from_temp_path
// step 3, and returns the absolute destination directory after validating it
// remains under the resolved root.
func (r *Resolver) ResolveUploadDestination(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", apierr.Validation(apierr.CodeBadRequest, "upload requires at least one tag to resolve a destination folder")
	}
	root := model.Root(tags[0])
	prefixes := r.roots[root]
	if len(prefixes) == 0 {
		return "", apierr.New(apierr.KindDependency, apierr.CodeDependencyMissing, fmt.Sprintf("no base directory configured for root %q", root))
	}
	base := prefixes[0]
	sub := "uncategorized"
	if len(tags) > 1 {
		sub = tags[1]
	}
	dest := filepath.Join(base, sub)
	if !isUnderPrefix(filepath.Clean(dest), filepath.Clean(base)) {
		return "", apierr.Validation(apierr.CodeBadRequest, "resolved destination escapes its base directory")
	}
	return dest, nil
}
