package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"paperbridge/internal/codec"
	"paperbridge/internal/device"
	"paperbridge/internal/models"
	"paperbridge/internal/workdir"
)

// Push uploads the PDF attachments of every item tagged to_sync to the
// device's unread folder. Items whose PDFs all arrive are tagged synced, and
// after the batch to_sync is cleared from exactly those items.
func (s *Syncer) Push(ctx context.Context) (Report, error) {
	var report Report

	items, err := s.lib.ItemsByTag(ctx, string(models.TagToSync))
	if err != nil {
		return report, fmt.Errorf("list items tagged %s: %w", models.TagToSync, err)
	}
	s.logger.Info("push started", "items", len(items), "folder", s.unreadPath)

	var done []*models.LibraryItem
	for i := range items {
		if err := ctx.Err(); err != nil {
			break
		}
		item := &items[i]
		s.report(models.DirectionPush, i+1, len(items), itemLabel(*item))
		if s.pushItem(ctx, item, &report) {
			done = append(done, item)
		}
	}

	// The watermark commits even on interrupt so finished items are not re-sent.
	if len(done) > 0 {
		if err := s.lib.RemoveTag(context.WithoutCancel(ctx), done, models.TagToSync); err != nil {
			return report, fmt.Errorf("clear %s: %w", models.TagToSync, err)
		}
	}
	s.logger.Info("push finished", "pushed", report.Pushed, "skipped", report.Skipped, "failed", report.Failed())
	return report, ctx.Err()
}

// pushItem reports whether every PDF of item reached the device and the item
// was tagged synced.
func (s *Syncer) pushItem(ctx context.Context, item *models.LibraryItem, report *Report) bool {
	label := itemLabel(*item)

	children, err := s.lib.Children(ctx, item.Key)
	if err != nil {
		s.fail(ctx, report, models.DirectionPush, item.Key, label, atStep("children", err))
		return false
	}
	var pdfs []models.Attachment
	for _, att := range children {
		if att.IsPDF() && att.HasFile() {
			pdfs = append(pdfs, att)
		}
	}
	if len(pdfs) == 0 {
		s.logger.Warn("item has no pdf attachment, skipping", "item", item.Key)
		s.skip(ctx, report, models.DirectionPush, item.Key, label, "children", ErrNoPDFAttachment.Error())
		return false
	}

	for _, att := range pdfs {
		if err := s.pushAttachment(ctx, att); err != nil {
			s.fail(ctx, report, models.DirectionPush, item.Key, att.Filename, err)
			return false
		}
		s.logger.Info("uploaded to device", "item", item.Key, "attachment", att.Key, "file", att.Filename)
	}

	if err := s.lib.AddTags(ctx, item, models.TagSynced); err != nil {
		s.fail(ctx, report, models.DirectionPush, item.Key, label, atStep("tag", err))
		return false
	}
	report.Pushed++
	for _, att := range pdfs {
		s.succeed(ctx, models.DirectionPush, item.Key, att.Filename)
	}
	return true
}

func (s *Syncer) pushAttachment(ctx context.Context, att models.Attachment) error {
	scratch, err := s.area.Acquire(att.Key)
	if err != nil {
		return atStep("workdir", err)
	}
	defer func() {
		if err := scratch.Release(); err != nil {
			s.logger.Warn("release scratch", "attachment", att.Key, "error", err)
		}
	}()

	name := attachmentFilename(att)
	var local string
	if s.remote != nil {
		local, err = s.fetchFromRemoteStore(ctx, scratch, att.Key, name)
	} else {
		local, err = s.fetchDirect(ctx, scratch, att.Key, name)
	}
	if err != nil {
		return err
	}
	if err := verifyChecksum(local, att.MD5); err != nil {
		return atStep("verify", err)
	}

	err = s.device.Upload(ctx, local, s.unreadPath)
	if errors.Is(err, device.ErrEntryExists) {
		// Left by an earlier run that failed on a sibling PDF.
		s.logger.Info("already on device", "attachment", att.Key, "file", name)
		return nil
	}
	if err != nil {
		return atStep("upload", err)
	}
	return nil
}

func (s *Syncer) fetchDirect(ctx context.Context, scratch *workdir.Scratch, key, name string) (string, error) {
	local, err := scratch.Path(name)
	if err != nil {
		return "", atStep("fetch", err)
	}
	out, err := os.Create(local)
	if err != nil {
		return "", atStep("fetch", err)
	}
	if err := s.lib.DownloadFile(ctx, key, out); err != nil {
		_ = out.Close()
		return "", atStep("fetch", err)
	}
	if err := out.Close(); err != nil {
		return "", atStep("fetch", err)
	}
	return local, nil
}

// fetchFromRemoteStore downloads {key}.zip, unpacks it and returns the path of
// name inside it.
func (s *Syncer) fetchFromRemoteStore(ctx context.Context, scratch *workdir.Scratch, key, name string) (string, error) {
	remoteName := key + ".zip"
	archive, err := scratch.Path(remoteName)
	if err != nil {
		return "", atStep("fetch", err)
	}
	if err := s.remote.Download(ctx, remoteName, archive); err != nil {
		return "", atStep("fetch", err)
	}
	tree, err := scratch.Sub("unpacked")
	if err != nil {
		return "", atStep("unpack", err)
	}
	if err := codec.Unpack(archive, tree); err != nil {
		return "", atStep("unpack", err)
	}
	local, err := codec.FindFile(tree, name)
	if err != nil {
		return "", atStep("locate", fmt.Errorf("%s in %s: %w", name, remoteName, ErrAttachmentMissing))
	}
	return local, nil
}

// verifyChecksum compares the fetched file with the library's MD5. Records
// without a checksum are accepted.
func verifyChecksum(local, want string) error {
	if want == "" {
		return nil
	}
	got, err := codec.MD5File(local)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%s: got %s, library has %s: %w", filepath.Base(local), got, want, ErrChecksumMismatch)
	}
	return nil
}

func attachmentFilename(att models.Attachment) string {
	name := filepath.Base(strings.TrimSpace(att.Filename))
	if name == "" || name == "." || name == "/" {
		return att.Key + ".pdf"
	}
	return name
}

func itemLabel(item models.LibraryItem) string {
	if item.Title != "" {
		return item.Title
	}
	return item.Key
}
