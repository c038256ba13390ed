// Package indexer defines the search collaborator interface and the raw
// candidate shape indexers return.
package indexer

import (
	"context"
	"errors"
	"time"
)

// Download protocols.
const (
	ProtocolTorrent = "torrent"
	ProtocolUsenet  = "usenet"
)

var ErrIndexerUnavailable = errors.New("indexer unavailable")

// Release is a raw candidate as reported by an indexer, before parsing.
type Release struct {
	Title       string    `json:"title"`
	PayloadRef  string    `json:"payloadRef"` // magnet URI, .torrent URL, or NZB URL
	Indexer     string    `json:"indexer"`
	Priority    int       `json:"priority"` // indexer-assigned, lower is preferred
	Protocol    string    `json:"protocol"`
	Size        int64     `json:"size"`
	Seeders     int       `json:"seeders"` // torrent only
	AgeDays     int       `json:"ageDays"`
	PublishDate time.Time `json:"publishDate"`
}

// Query describes a single indexer search.
type Query struct {
	Term       string
	Categories []int
}

// Searcher is the external search collaborator. Implementations must honor
// context cancellation; a failed indexer returns an error rather than an
// empty result so "no acceptable releases" stays distinct from "search
// failed".
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Release, error)
}

// RSSFetcher is implemented by indexers exposing a recent-releases feed.
type RSSFetcher interface {
	Name() string
	FetchRecent(ctx context.Context) ([]Release, error)
}
