// Package codec converts between the device's archive format, flat working
// directories, rendered PDFs, and the remote-file-store package format.
package codec

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// renderedSuffix is appended by the renderer to the entry id, space included.
	renderedSuffix = " _remarks.pdf"

	propVersion = "1"
)

var (
	ErrUnsafePath          = errors.New("archive entry escapes destination")
	ErrRenderedPDFMissing  = errors.New("renderer did not produce expected pdf")
	ErrEmptyArchive        = errors.New("archive has no entries")
	ErrRendererUnavailable = errors.New("renderer is not configured")
)

// Renderer turns an unpacked notebook tree into an annotated PDF written to outDir.
type Renderer interface {
	Render(ctx context.Context, treeDir, outDir string) error
}

// Unpack extracts the zip at archivePath into destDir.
func Unpack(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		if zr != nil {
			_ = zr.Close()
		}
		return fmt.Errorf("%s: %w", filepath.Base(archivePath), ErrUnsafePath)
	}
	if err != nil {
		return fmt.Errorf("open archive %s: %w", filepath.Base(archivePath), err)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return fmt.Errorf("%s: %w", filepath.Base(archivePath), ErrEmptyArchive)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, f := range zr.File {
		if err := extractEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, destDir string) error {
	target, err := entryTarget(destDir, f.Name)
	if err != nil {
		return err
	}
	if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract archive entry %s: %w", f.Name, err)
	}
	return out.Close()
}

func entryTarget(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}
	return filepath.Join(destDir, clean), nil
}

// Render runs the renderer over treeDir and returns the path of {entryID}.pdf
// in outDir.
func Render(ctx context.Context, r Renderer, treeDir, outDir, entryID string) (string, error) {
	if r == nil {
		return "", ErrRendererUnavailable
	}
	if err := r.Render(ctx, treeDir, outDir); err != nil {
		return "", fmt.Errorf("render %s: %w", entryID, err)
	}
	rendered := filepath.Join(outDir, entryID+renderedSuffix)
	if _, err := os.Stat(rendered); err != nil {
		return "", fmt.Errorf("%s: %w", rendered, ErrRenderedPDFMissing)
	}
	final := filepath.Join(outDir, entryID+".pdf")
	if err := os.Rename(rendered, final); err != nil {
		return "", err
	}
	return final, nil
}

// Pack writes a zip at archivePath holding exactly one entry, the file at
// pdfPath stored as entryName. An empty entryName uses the file's base name.
func Pack(pdfPath, entryName, archivePath string) error {
	if strings.TrimSpace(entryName) == "" {
		entryName = filepath.Base(pdfPath)
	}
	src, err := os.Open(pdfPath)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(archivePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	w, err := zw.Create(entryName)
	if err != nil {
		_ = out.Close()
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return fmt.Errorf("pack %s: %w", entryName, err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Prop is the sidecar descriptor the library expects next to a
// remote-file-store package.
type Prop struct {
	XMLName xml.Name `xml:"properties"`
	Version string   `xml:"version,attr"`
	MTime   string   `xml:"mtime"`
	Hash    string   `xml:"hash"`
}

// NewProp builds the descriptor for pdfPath with the given modification time.
func NewProp(pdfPath string, mtime time.Time) (Prop, error) {
	sum, err := MD5File(pdfPath)
	if err != nil {
		return Prop{}, err
	}
	return Prop{
		Version: propVersion,
		MTime:   strconv.FormatInt(mtime.Unix(), 10),
		Hash:    sum,
	}, nil
}

// Marshal renders the descriptor without an XML declaration or indentation.
func (p Prop) Marshal() ([]byte, error) {
	return xml.Marshal(p)
}

// WriteProp writes the descriptor to path.
func WriteProp(path string, p Prop) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MD5File returns the hex MD5 digest of the file at path.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FindFile returns the path of the regular file named name anywhere below dir.
func FindFile(dir, name string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%s not found: %w", name, os.ErrNotExist)
	}
	return found, nil
}
