// Package mock provides an in-memory download client used in tests and for
// running the daemon without a real client attached.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fetcharr/fetcharr/internal/downloader"
)

type transfer struct {
	payloadRef string
	progress   downloader.Progress
}

// Client simulates a download client. Transfers sit at zero progress until a
// test or caller advances them via SetProgress/Complete/Fail.
type Client struct {
	mu        sync.Mutex
	name      string
	protocol  string
	transfers map[string]*transfer
	submitErr error
}

func NewClient(name, protocol string) *Client {
	return &Client{
		name:      name,
		protocol:  protocol,
		transfers: make(map[string]*transfer),
	}
}

func (c *Client) Name() string     { return c.name }
func (c *Client) Protocol() string { return c.protocol }

// FailSubmissions makes every future Submit return the given error.
func (c *Client) FailSubmissions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

func (c *Client) Submit(_ context.Context, payloadRef string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return "", c.submitErr
	}
	id := uuid.NewString()
	c.transfers[id] = &transfer{
		payloadRef: payloadRef,
		progress:   downloader.Progress{State: downloader.TransferQueued},
	}
	return id, nil
}

func (c *Client) PollStatus(_ context.Context, downloadID string) (downloader.Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tr, ok := c.transfers[downloadID]
	if !ok {
		return downloader.Progress{}, fmt.Errorf("%w: %s", downloader.ErrDownloadNotFound, downloadID)
	}
	return tr.progress, nil
}

func (c *Client) Remove(_ context.Context, downloadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.transfers[downloadID]; !ok {
		return fmt.Errorf("%w: %s", downloader.ErrDownloadNotFound, downloadID)
	}
	delete(c.transfers, downloadID)
	return nil
}

func (c *Client) Pause(_ context.Context, downloadID string) error {
	return c.setState(downloadID, downloader.TransferPaused)
}

func (c *Client) Resume(_ context.Context, downloadID string) error {
	return c.setState(downloadID, downloader.TransferDownloading)
}

func (c *Client) setState(downloadID string, state downloader.TransferState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tr, ok := c.transfers[downloadID]
	if !ok {
		return fmt.Errorf("%w: %s", downloader.ErrDownloadNotFound, downloadID)
	}
	tr.progress.State = state
	return nil
}

// SetProgress overwrites a transfer's reported progress.
func (c *Client) SetProgress(downloadID string, p downloader.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok := c.transfers[downloadID]; ok {
		tr.progress = p
	}
}

// Complete marks a transfer finished with its files at outputPath.
func (c *Client) Complete(downloadID, outputPath string) {
	c.SetProgress(downloadID, downloader.Progress{
		State:      downloader.TransferCompleted,
		OutputPath: outputPath,
	})
}

// Fail marks a transfer as terminally errored.
func (c *Client) Fail(downloadID, message string) {
	c.SetProgress(downloadID, downloader.Progress{
		State:        downloader.TransferError,
		ErrorMessage: message,
	})
}
