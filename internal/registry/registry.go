// Package registry locates and parses module metadata from the Nebula
// module registry.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nebula-lang/orbit/internal/fetch"
	"github.com/nebula-lang/orbit/internal/module"
)

// indexDocument is the registry index filename under the base locator.
const indexDocument = "index.json"

// ErrNotFound is returned when a module is absent from the index.
var ErrNotFound = errors.New("module not found in registry")

// Client resolves module names against a registry and fetches module
// metadata documents. The index lives only for the client's lifetime;
// FetchIndex rebuilds it from scratch on every call.
type Client struct {
	base    string
	fetcher fetch.Fetcher
	logger  *log.Logger
	index   map[string]string // module name -> metadata locator
}

// NewClient creates a registry client for the given base locator.
func NewClient(base string, fetcher fetch.Fetcher, logger *log.Logger) *Client {
	return &Client{
		base:    strings.TrimSuffix(base, "/"),
		fetcher: fetcher,
		logger:  logger,
		index:   make(map[string]string),
	}
}

// FetchIndex retrieves and parses the registry index. On failure the
// previous index is left untouched; a partial index is never exposed.
func (c *Client) FetchIndex() error {
	url := c.base + "/" + indexDocument
	c.logger.Info("fetching registry index", "url", url)

	data, err := c.fetcher.Fetch(url)
	if err != nil {
		return fmt.Errorf("fetching registry index: %w", err)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return fmt.Errorf("parsing registry index: %w", err)
	}
	modules, ok := doc.object["modules"]
	if !ok || !modules.isObj {
		return errors.New(`invalid registry index: "modules" object not found`)
	}

	index := make(map[string]string, len(modules.object))
	for name, loc := range modules.object {
		if loc.isObj {
			return fmt.Errorf("invalid registry index: locator for %q is not a string", name)
		}
		index[name] = c.absolute(loc.scalar)
	}
	if len(index) == 0 {
		return errors.New("registry index is empty")
	}

	c.index = index
	c.logger.Info("loaded registry index", "modules", len(index))
	return nil
}

// Resolve returns the metadata locator for name, or "" when the module
// is not in the index.
func (c *Client) Resolve(name string) string {
	return c.index[name]
}

// FetchMetadata fetches and parses the metadata document for name.
// Returns ErrNotFound when the module is absent from the index.
func (c *Client) FetchMetadata(name string) (module.Metadata, error) {
	url := c.Resolve(name)
	if url == "" {
		return module.Metadata{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	c.logger.Info("fetching module metadata", "module", name, "url", url)
	data, err := c.fetcher.Fetch(url)
	if err != nil {
		return module.Metadata{}, fmt.Errorf("fetching metadata for %s: %w", name, err)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return module.Metadata{}, fmt.Errorf("parsing metadata for %s: %w", name, err)
	}
	return metadataFromDoc(name, doc), nil
}

// Search returns the names of indexed modules containing query,
// case-insensitively. An empty query matches every module. The result
// order is unspecified.
func (c *Client) Search(query string) []string {
	q := strings.ToLower(query)
	var results []string
	for name := range c.index {
		if strings.Contains(strings.ToLower(name), q) {
			results = append(results, name)
		}
	}
	return results
}

// absolute rewrites a base-relative locator (leading '.') against the
// registry base.
func (c *Client) absolute(locator string) string {
	if strings.HasPrefix(locator, ".") {
		return c.base + strings.TrimPrefix(locator, ".")
	}
	return locator
}

// platformEntryKeys are the per-platform binary URL keys a version
// object may carry.
var platformEntryKeys = []string{"entry-linux", "entry-win", "entry-mac"}

func metadataFromDoc(name string, doc node) module.Metadata {
	meta := module.Metadata{
		Name:        name,
		Description: doc.field("description"),
		Author:      doc.field("author"),
		License:     doc.field("license"),
		Repository:  doc.field("repository"),
		Latest:      doc.field("latest"),
		Versions:    make(map[string]module.Version),
	}

	versions, ok := doc.object["versions"]
	if !ok || !versions.isObj {
		return meta
	}
	for id, vn := range versions.object {
		if !vn.isObj {
			continue
		}
		v := module.Version{
			Description: vn.field("description"),
			Entries:     make(map[string]string),
			Deps:        make(map[string]string),
		}
		for _, key := range platformEntryKeys {
			if url := vn.field(key); url != "" {
				v.Entries[key] = url
			}
		}
		if git, ok := vn.object["git"]; ok && git.isObj {
			v.Git = module.GitSource{
				URL: git.field("url"),
				Ref: git.field("ref"),
			}
		}
		if deps, ok := vn.object["deps"]; ok && deps.isObj {
			for dep, constraint := range deps.object {
				if !constraint.isObj {
					v.Deps[dep] = constraint.scalar
				}
			}
		}
		meta.Versions[id] = v
	}
	return meta
}
