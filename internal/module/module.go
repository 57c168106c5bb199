package module

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Metadata describes a module as published in the registry.
type Metadata struct {
	Name        string
	Description string
	Author      string
	License     string
	Repository  string
	Latest      string
	Versions    map[string]Version
}

// Version is a single published version of a module.
type Version struct {
	Description string
	Entries     map[string]string // platform key -> binary URL
	Git         GitSource
	Deps        map[string]string // module name -> version constraint
}

// GitSource locates a buildable source tree.
type GitSource struct {
	URL string
	Ref string // branch, tag, or commit hash
}

// Acquirable reports whether this version can be installed at all:
// either it can be built from source or it ships at least one binary.
func (v Version) Acquirable() bool {
	return v.Git.URL != "" || len(v.Entries) > 0
}

// SortedVersions returns the version ids in ascending semver order.
// Ids that do not parse as semver sort after the ones that do,
// lexicographically.
func (m Metadata) SortedVersions() []string {
	ids := make([]string, 0, len(m.Versions))
	for id := range m.Versions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		vi, erri := semver.NewVersion(ids[i])
		vj, errj := semver.NewVersion(ids[j])
		switch {
		case erri == nil && errj == nil:
			return vi.LessThan(vj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// DescriptorFile is the metadata descriptor filename inside an
// installed module directory.
const DescriptorFile = "metadata.json"

// Descriptor records what was installed into a module directory.
type Descriptor struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Platform    string `json:"platform"`
	Library     string `json:"library"`
}

// Write marshals the descriptor to metadata.json inside dir.
func (d Descriptor) Write(dir string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling descriptor: %w", err)
	}
	path := filepath.Join(dir, DescriptorFile)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadDescriptor loads the descriptor from an installed module directory.
func ReadDescriptor(dir string) (Descriptor, error) {
	var d Descriptor
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return d, fmt.Errorf("reading descriptor: %w", err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parsing descriptor: %w", err)
	}
	return d, nil
}
