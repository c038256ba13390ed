// Package downloader defines the download client collaborator interface and
// protocol-based client routing.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoClientForProtocol = errors.New("no download client for protocol")
	ErrDownloadNotFound    = errors.New("download not found")
	ErrSubmitFailed        = errors.New("download client rejected submission")
)

// TransferState is the client-side state of one transfer.
type TransferState string

const (
	TransferQueued      TransferState = "queued"
	TransferDownloading TransferState = "downloading"
	TransferPaused      TransferState = "paused"
	TransferCompleted   TransferState = "completed"
	TransferError       TransferState = "error"
)

// Progress is one status report for an in-flight transfer.
type Progress struct {
	State          TransferState `json:"state"`
	TotalBytes     int64         `json:"totalBytes"`
	RemainingBytes int64         `json:"remainingBytes"`
	ETA            time.Duration `json:"eta,omitempty"`
	OutputPath     string        `json:"outputPath,omitempty"` // set once completed
	Warning        string        `json:"warning,omitempty"`    // non-fatal client issue
	ErrorMessage   string        `json:"errorMessage,omitempty"`
}

// Client is a single download client. Submit returns the client-assigned
// download id that identifies the transfer from then on.
type Client interface {
	Name() string
	Protocol() string
	Submit(ctx context.Context, payloadRef string) (string, error)
	PollStatus(ctx context.Context, downloadID string) (Progress, error)
	Remove(ctx context.Context, downloadID string) error
	Pause(ctx context.Context, downloadID string) error
	Resume(ctx context.Context, downloadID string) error
}

// Router picks the client for a candidate's protocol.
type Router struct {
	clients map[string]Client
}

func NewRouter(clients ...Client) *Router {
	r := &Router{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Protocol()] = c
	}
	return r
}

// ClientFor returns the client handling the given protocol.
func (r *Router) ClientFor(protocol string) (Client, error) {
	c, ok := r.clients[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoClientForProtocol, protocol)
	}
	return c, nil
}
