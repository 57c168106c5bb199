// Package fetch retrieves registry documents and module binaries. It
// treats remote HTTP retrieval and local file:// retrieval uniformly.
package fetch

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Fetcher retrieves the bytes behind a locator. A failed fetch is an
// error; a successful fetch never returns an empty body.
type Fetcher interface {
	Fetch(url string) ([]byte, error)
}

// Client is the production Fetcher. Locators starting with file:// are
// read from disk instead of the network.
type Client struct {
	http *http.Client
}

// NewClient creates a fetch client.
func NewClient() *Client {
	return &Client{http: &http.Client{}}
}

const filePrefix = "file://"

// Fetch retrieves the content at url.
func (c *Client) Fetch(url string) ([]byte, error) {
	if strings.HasPrefix(url, filePrefix) {
		data, err := os.ReadFile(strings.TrimPrefix(url, filePrefix))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("reading %s: empty file", url)
		}
		return data, nil
	}

	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetching %s: empty response", url)
	}
	return data, nil
}
