package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"paperbridge/internal/codec"
	"paperbridge/internal/models"
	"paperbridge/internal/remotestore"
	"paperbridge/internal/retry"
	"paperbridge/internal/workdir"
)

// Pull brings annotated documents from the device's read folder back into
// the library as new "(Annot) " attachments and tags their items read.
func (s *Syncer) Pull(ctx context.Context) (Report, error) {
	var report Report

	entries, err := s.device.List(ctx, s.readPath)
	if err != nil {
		return report, fmt.Errorf("list %s: %w", s.readPath, err)
	}
	snapshot, err := s.syncedSnapshot(ctx)
	if err != nil {
		return report, err
	}
	s.logger.Info("pull started", "entries", len(entries), "synced_items", len(snapshot), "folder", s.readPath)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			break
		}
		s.report(models.DirectionPull, i+1, len(entries), entry.Name)
		s.pullEntry(ctx, entry, snapshot, &report)
	}
	s.logger.Info("pull finished", "pulled", report.Pulled, "skipped", report.Skipped, "failed", report.Failed())
	return report, ctx.Err()
}

// syncedSnapshot captures every item tagged synced with its attachments.
// Items whose children cannot be read are left out.
func (s *Syncer) syncedSnapshot(ctx context.Context) ([]SyncedItem, error) {
	items, err := s.lib.ItemsByTag(ctx, string(models.TagSynced))
	if err != nil {
		return nil, fmt.Errorf("list items tagged %s: %w", models.TagSynced, err)
	}
	snapshot := make([]SyncedItem, 0, len(items))
	for _, item := range items {
		children, err := s.lib.Children(ctx, item.Key)
		if err != nil {
			s.logger.Warn("attachments unavailable, item excluded from pull", "item", item.Key, "error", err)
			continue
		}
		snapshot = append(snapshot, SyncedItem{Item: item, Attachments: children})
	}
	return snapshot, nil
}

func (s *Syncer) pullEntry(ctx context.Context, entry models.DeviceEntry, snapshot []SyncedItem, report *Report) {
	decision := s.arbitrate(ctx, entry, snapshot)
	switch decision {
	case Skip:
		s.logger.Info("library copy is current, skipping", "entry", entry.Name)
		s.skip(ctx, report, models.DirectionPull, "", entry.Name, "arbiter", "library copy is current")
		return
	case Ambiguous:
		s.logger.Warn("no synced attachment matches entry, skipping", "entry", entry.Name)
		s.skip(ctx, report, models.DirectionPull, "", entry.Name, "arbiter", ErrNoMatchingItem.Error())
		return
	}

	target := s.targetItem(entry.Name, snapshot)
	if target == nil {
		s.fail(ctx, report, models.DirectionPull, "", entry.Name, atStep("match", fmt.Errorf("%s: %w", entry.Name, ErrNoMatchingItem)))
		return
	}

	if err := s.pullInto(ctx, entry, target); err != nil {
		s.fail(ctx, report, models.DirectionPull, target.Key, entry.Name, err)
		return
	}
	report.Pulled++
	s.succeed(ctx, models.DirectionPull, target.Key, entry.Name)
	s.logger.Info("pulled annotated document", "entry", entry.Name, "item", target.Key)
}

// arbitrate fails open: when the device metadata cannot be read the entry is
// pulled.
func (s *Syncer) arbitrate(ctx context.Context, entry models.DeviceEntry, snapshot []SyncedItem) Decision {
	meta, err := s.device.Stat(ctx, entry.Path())
	if err != nil {
		s.logger.Warn("metadata unavailable, pulling anyway", "entry", entry.Name, "error", err)
		return AlwaysPull
	}
	modified, err := meta.ModifiedTime()
	if err != nil {
		s.logger.Warn("modification time unreadable, pulling anyway", "entry", entry.Name, "error", err)
		return AlwaysPull
	}
	decision := Decide(entry.Name, modified, snapshot)
	s.logger.Debug("arbiter decision", "entry", entry.Name, "device_modified", modified, "decision", decision)
	return decision
}

// targetItem returns the first snapshot item with an attachment matching
// name. On the remote-store path items already tagged read are passed over.
func (s *Syncer) targetItem(name string, snapshot []SyncedItem) *models.LibraryItem {
	for i := range snapshot {
		if s.remote != nil && snapshot[i].Item.HasTag(models.TagRead) {
			continue
		}
		for _, att := range snapshot[i].Attachments {
			if Matches(name, att.Filename) {
				return &snapshot[i].Item
			}
		}
	}
	return nil
}

func (s *Syncer) pullInto(ctx context.Context, entry models.DeviceEntry, target *models.LibraryItem) error {
	scratch, err := s.area.Acquire(entry.Name)
	if err != nil {
		return atStep("workdir", err)
	}
	defer func() {
		if err := scratch.Release(); err != nil {
			s.logger.Warn("release scratch", "entry", entry.Name, "error", err)
		}
	}()

	archive, err := s.device.Download(ctx, entry.Path(), scratch.Dir())
	if err != nil {
		return atStep("download", err)
	}
	tree, err := scratch.Sub("tree")
	if err != nil {
		return atStep("unpack", err)
	}
	if err := codec.Unpack(archive, tree); err != nil {
		return atStep("unpack", err)
	}
	out, err := scratch.Sub("rendered")
	if err != nil {
		return atStep("render", err)
	}
	pdf, err := codec.Render(ctx, s.renderer, tree, out, entry.Name)
	if err != nil {
		return atStep("render", err)
	}

	logical := models.AnnotatedName(filepath.Base(pdf))
	if s.remote != nil {
		err = s.attachViaRemoteStore(ctx, scratch, target.Key, logical, pdf)
	} else {
		key, uploadErr := s.lib.UploadAttachment(ctx, target.Key, logical, pdf)
		if uploadErr != nil {
			s.discardAttachment(ctx, key)
			err = atStep("attach", uploadErr)
		}
	}
	if err != nil {
		return err
	}

	if err := s.lib.AddTags(ctx, target, models.TagRead); err != nil {
		return atStep("tag", err)
	}
	return nil
}

// attachViaRemoteStore creates the attachment record, then uploads
// {key}.zip holding the PDF as logical and the {key}.prop descriptor. The
// record is deleted again if anything after its creation fails.
func (s *Syncer) attachViaRemoteStore(ctx context.Context, scratch *workdir.Scratch, parentKey, logical, pdf string) (err error) {
	prop, err := codec.NewProp(pdf, s.now())
	if err != nil {
		return atStep("prop", err)
	}

	tmpl, err := s.lib.ItemTemplate(ctx, "attachment", "imported_file")
	if err != nil {
		return atStep("template", err)
	}
	tmpl["title"] = strings.TrimSuffix(logical, filepath.Ext(logical))
	tmpl["filename"] = logical
	tmpl["contentType"] = models.MediaTypePDF
	tmpl["md5"] = prop.Hash
	tmpl["mtime"] = prop.MTime

	key, err := s.lib.CreateAttachment(ctx, parentKey, tmpl)
	if err != nil {
		return atStep("create", err)
	}
	defer func() {
		if err != nil {
			s.discardAttachment(ctx, key)
		}
	}()

	archive, err := scratch.Path(key + ".zip")
	if err != nil {
		return atStep("pack", err)
	}
	if err := codec.Pack(pdf, logical, archive); err != nil {
		return atStep("pack", err)
	}
	propPath, err := scratch.Path(key + ".prop")
	if err != nil {
		return atStep("prop", err)
	}
	if err := codec.WriteProp(propPath, prop); err != nil {
		return atStep("prop", err)
	}

	for _, obj := range []struct{ remote, local string }{
		{key + ".zip", archive},
		{key + ".prop", propPath},
	} {
		ok := s.retrier.Do(ctx, "upload "+obj.remote, func(ctx context.Context) retry.Result {
			return uploadResult(s.remote.Upload(ctx, obj.remote, obj.local))
		})
		if !ok {
			return atStep("upload", fmt.Errorf("%s: %w", obj.remote, ErrUploadExhausted))
		}
	}
	return nil
}

// discardAttachment deletes an attachment record whose file never arrived.
// A leftover record carries a fresh modification time and would make the
// entry look already pulled on every later run.
func (s *Syncer) discardAttachment(ctx context.Context, key string) {
	if key == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	att, err := s.lib.Item(ctx, key)
	if err == nil {
		err = s.lib.DeleteItem(ctx, key, att.Version)
	}
	if err != nil {
		s.logger.Error("incomplete attachment left in library; delete it by hand", "attachment", key, "error", err)
		return
	}
	s.logger.Info("removed incomplete attachment", "attachment", key)
}

// uploadResult classifies a remote-store upload error. Local file errors are
// io failures; everything else is transport.
func uploadResult(err error) retry.Result {
	if err == nil {
		return retry.OK()
	}
	if errors.Is(err, remotestore.ErrLocalFile) || errors.Is(err, fs.ErrNotExist) {
		return retry.Fail(retry.FailureIO, err)
	}
	return retry.Fail(retry.FailureTransport, err)
}
