package ingestion

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// Fingerprint is the content hash that keys the result cache. It depends on
// file bytes only, so a renamed or reverted file keeps its fingerprint.
func Fingerprint(content []byte) string {
	sum := xxh3.Hash128(content).Bytes()
	return hex.EncodeToString(sum[:])
}

// ChangeSet partitions cataloged files against a previous run
type ChangeSet struct {
	Added     []string
	Modified  []string
	Unchanged []string
}

// DetectChanges compares current fingerprints (path -> fingerprint, in
// catalog order) against the fingerprints recorded by a previous run.
// Paths that disappeared are not reported.
func DetectChanges(files []FileEntry, current, previous map[string]string) ChangeSet {
	var cs ChangeSet
	for _, f := range files {
		fp, ok := current[f.Path]
		if !ok {
			continue
		}
		old, seen := previous[f.Path]
		switch {
		case !seen:
			cs.Added = append(cs.Added, f.Path)
		case old != fp:
			cs.Modified = append(cs.Modified, f.Path)
		default:
			cs.Unchanged = append(cs.Unchanged, f.Path)
		}
	}
	return cs
}
