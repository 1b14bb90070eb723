// Package remotestore moves packages to and from the WebDAV file store the
// library uses for attachment content.
package remotestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/studio-b12/gowebdav"
)

const defaultTimeout = 2 * time.Minute

// ErrNotFound is returned when a remote object does not exist.
var (
	ErrNotFound = errors.New("remote object not found")

	// ErrLocalFile marks failures reading or writing the local side of a
	// transfer.
	ErrLocalFile = errors.New("local file error")
)

// Client is a WebDAV-backed remote file store.
type Client struct {
	dav    *gowebdav.Client
	root   string
	logger *slog.Logger
}

// New creates a client for the store at url. Object names are resolved
// relative to the URL's path.
func New(url, username, password string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dav := gowebdav.NewClient(url, username, password)
	dav.SetTimeout(defaultTimeout)
	return &Client{dav: dav, root: "/", logger: logger}
}

// Check verifies the store is reachable with the configured credentials.
func (c *Client) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.dav.Connect(); err != nil {
		return fmt.Errorf("connect remote store: %w", err)
	}
	return nil
}

// Upload stores the file at localPath as remote.
func (c *Client) Upload(ctx context.Context, remote, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocalFile, err)
	}
	defer f.Close()

	target := c.objectPath(remote)
	if err := c.dav.WriteStream(target, f, 0o644); err != nil {
		return fmt.Errorf("upload %s: %w", remote, err)
	}
	c.logger.Debug("remote store upload", "object", target)
	return nil
}

// Download copies remote into a new file at localPath.
func (c *Client) Download(ctx context.Context, remote, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := c.objectPath(remote)
	rc, err := c.dav.ReadStream(target)
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return fmt.Errorf("%s: %w", remote, ErrNotFound)
		}
		return fmt.Errorf("download %s: %w", remote, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocalFile, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("download %s: %w", remote, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	c.logger.Debug("remote store download", "object", target)
	return nil
}

func (c *Client) objectPath(name string) string {
	return path.Join(c.root, path.Clean("/"+name))
}
