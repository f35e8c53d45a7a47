package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"

	"github.com/rohankatakam/codegraph/internal/config"
	"github.com/rohankatakam/codegraph/internal/errors"
)

// FileEntry is a cataloged source file
type FileEntry struct {
	Path      string // absolute path
	RelPath   string // slash separated, relative to the catalog root
	Size      int64
	ModTime   time.Time
	Module    string // dotted module name
	IsPackage bool   // true for __init__ files
}

// SkippedFile is a path the catalog saw but will not process
type SkippedFile struct {
	Path   string
	Reason string
}

// CatalogResult holds the discovered files in path order
type CatalogResult struct {
	Root    string
	Files   []FileEntry
	Skipped []SkippedFile
}

// Catalog walks root and returns the files selected by the discovery rules.
// Problems with individual paths are recorded as skipped, never returned.
// Only a missing or unreadable root is an error.
func Catalog(ctx context.Context, root string, rules config.DiscoveryConfig) (*CatalogResult, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.FileSystemError(err, root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.FileSystemError(err, root)
	}
	if !info.IsDir() {
		return nil, errors.ValidationErrorf("catalog root %s is not a directory", root)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skipDirs := make(map[string]bool, len(rules.SkipDirs))
	for _, d := range rules.SkipDirs {
		skipDirs[d] = true
	}

	var ignore []string
	if rules.IgnoreFile != "" {
		ignorePath := rules.IgnoreFile
		if !filepath.IsAbs(ignorePath) {
			ignorePath = filepath.Join(root, ignorePath)
		}
		ignore, _ = loadIgnoreFile(ignorePath)
	}

	result := &CatalogResult{Root: root}
	skip := func(path, format string, args ...interface{}) {
		result.Skipped = append(result.Skipped, SkippedFile{Path: path, Reason: fmt.Sprintf(format, args...)})
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			skip(path, "unreadable: %v", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			skip(path, "outside root: %v", err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || matchAny(ignore, rel, d.Name())) {
				return filepath.SkipDir
			}
			return nil
		}

		if !matchAny(rules.Include, rel, "") {
			return nil
		}
		if matchAny(rules.Exclude, rel, "") || matchAny(ignore, rel, d.Name()) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			skip(path, "symlink")
			return nil
		}
		if !d.Type().IsRegular() {
			skip(path, "not a regular file")
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			skip(path, "unreadable: %v", err)
			return nil
		}
		if rules.MaxFileBytes > 0 && fi.Size() > rules.MaxFileBytes {
			skip(path, "size %d exceeds limit %d", fi.Size(), rules.MaxFileBytes)
			return nil
		}

		name, isPkg := ModuleName(rel)
		result.Files = append(result.Files, FileEntry{
			Path:      path,
			RelPath:   rel,
			Size:      fi.Size(),
			ModTime:   fi.ModTime(),
			Module:    name,
			IsPackage: isPkg,
		})
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.FileSystemError(err, root)
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].RelPath < result.Files[j].RelPath })
	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i].Path < result.Skipped[j].Path })
	return result, nil
}

// ModuleName derives the dotted module name from a slash separated path
// relative to the catalog root. Package __init__ files take the package name.
func ModuleName(rel string) (string, bool) {
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	parts := strings.Split(rel, "/")
	if len(parts) > 1 && parts[len(parts)-1] == "__init__" {
		return strings.Join(parts[:len(parts)-1], "."), true
	}
	return strings.Join(parts, "."), parts[len(parts)-1] == "__init__"
}

// matchAny reports whether rel (or base, when a pattern has no slash)
// matches any of the glob patterns
func matchAny(patterns []string, rel, base string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if base != "" && !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
		}
	}
	return false
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	return patterns, scanner.Err()
}
