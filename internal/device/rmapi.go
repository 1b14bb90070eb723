// Package device wraps the rmapi command-line bridge to the tablet's cloud
// document store.
//
// Only four operations are used by the sync: listing the files of a folder,
// reading one entry's metadata, downloading an entry's archive and uploading a
// file into a folder.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"paperbridge/internal/models"
)

const (
	listHeaderPrefix = " Time"
	listDirPrefix    = "[d]"
	listEntryPrefix  = 4

	entryExistsMarker = "entry already exists"
)

// RMAPI runs the rmapi binary.
type RMAPI struct {
	binary string
	logger *slog.Logger
}

// New returns a bridge running binary.
func New(binary string, logger *slog.Logger) *RMAPI {
	if strings.TrimSpace(binary) == "" {
		binary = "rmapi"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RMAPI{binary: binary, logger: logger}
}

// Check verifies the bridge is installed and authenticated by listing the root.
func (r *RMAPI) Check(ctx context.Context) error {
	_, err := r.run(ctx, "", "ls")
	return err
}

// List returns the files of folder. Subfolders and header lines are dropped.
func (r *RMAPI) List(ctx context.Context, folder string) ([]models.DeviceEntry, error) {
	out, err := r.run(ctx, "", "ls", folder)
	if err != nil {
		return nil, err
	}
	names := parseListing(string(out))
	entries := make([]models.DeviceEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, models.DeviceEntry{Name: name, Folder: folder})
	}
	return entries, nil
}

// Stat returns the metadata of the entry at entryPath.
func (r *RMAPI) Stat(ctx context.Context, entryPath string) (models.DeviceMetadata, error) {
	out, err := r.run(ctx, "", "stat", entryPath)
	if err != nil {
		return models.DeviceMetadata{}, err
	}
	meta, err := parseMetadata(string(out))
	if err != nil {
		return models.DeviceMetadata{}, fmt.Errorf("stat %s: %w", entryPath, err)
	}
	return meta, nil
}

// Download fetches the archive of entryPath into dir and returns its path.
func (r *RMAPI) Download(ctx context.Context, entryPath, dir string) (string, error) {
	if _, err := r.run(ctx, dir, "geta", entryPath); err != nil {
		return "", err
	}
	archive := filepath.Join(dir, path.Base(entryPath)+".zip")
	if _, err := os.Stat(archive); err != nil {
		return "", fmt.Errorf("%s: %w", archive, ErrArchiveMissing)
	}
	return archive, nil
}

// Upload puts the local file into folder. A document of the same name
// already in folder fails with ErrEntryExists.
func (r *RMAPI) Upload(ctx context.Context, localPath, folder string) error {
	_, err := r.run(ctx, "", "put", localPath, folder)
	if err != nil && errors.Is(err, ErrCommandFailed) && strings.Contains(err.Error(), entryExistsMarker) {
		return fmt.Errorf("put %s: %w", filepath.Base(localPath), ErrEntryExists)
	}
	return err
}

func (r *RMAPI) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() > 0 {
		r.logger.Debug("device bridge stderr", "args", args, "stderr", strings.TrimSpace(stderr.String()))
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || (dir == "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("%s: %w", r.binary, ErrBridgeUnavailable)
		}
		return stdout.Bytes(), fmt.Errorf("%s %s: %w: %v\n%s",
			r.binary, strings.Join(args, " "), ErrCommandFailed, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func parseListing(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, listHeaderPrefix) || strings.HasPrefix(line, listDirPrefix) {
			continue
		}
		if len(line) <= listEntryPrefix {
			continue
		}
		names = append(names, line[listEntryPrefix:])
	}
	return names
}

func parseMetadata(output string) (models.DeviceMetadata, error) {
	var meta models.DeviceMetadata
	start := strings.Index(output, "{")
	end := strings.Index(output, "}")
	if start < 0 || end < start {
		return meta, ErrMetadataMissing
	}
	if err := json.Unmarshal([]byte(output[start:end+1]), &meta); err != nil {
		return meta, fmt.Errorf("decode device metadata: %w", err)
	}
	return meta, nil
}
