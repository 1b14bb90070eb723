package reconcile

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"paperbridge/internal/device"
	"paperbridge/internal/models"
	"paperbridge/internal/retry"
	"paperbridge/internal/workdir"
)

var errInjected = errors.New("injected failure")

type uploadedAttachment struct {
	ParentKey string
	Filename  string
	Content   string
}

type fakeLibrary struct {
	order    []string
	items    map[string]*models.LibraryItem
	children map[string][]models.Attachment
	files    map[string]string

	failChildren   map[string]bool
	failAddTags    map[string]bool
	failCreate     bool
	failFileUpload bool
	failDelete     bool

	removeCalls [][]string
	uploads     []uploadedAttachment
	created     []map[string]any
	deleted     []string
	downloads   []string
	nextKey     int
}

// libraryClock is the modification time the fake library stamps on records
// it creates, later than every device timestamp used in the tests.
var libraryClock = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		items:        map[string]*models.LibraryItem{},
		children:     map[string][]models.Attachment{},
		files:        map[string]string{},
		failChildren: map[string]bool{},
		failAddTags:  map[string]bool{},
	}
}

func (f *fakeLibrary) addItem(key string, tags ...string) {
	f.order = append(f.order, key)
	f.items[key] = &models.LibraryItem{Key: key, Version: 1, Title: "Title " + key, Tags: tags}
}

func (f *fakeLibrary) addPDF(parent, key, filename, content string, modified *time.Time) {
	f.children[parent] = append(f.children[parent], models.Attachment{
		Key:          key,
		ParentKey:    parent,
		Filename:     filename,
		ContentType:  models.MediaTypePDF,
		DateModified: modified,
	})
	f.files[key] = content
}

func (f *fakeLibrary) tags(key string) []string {
	return f.items[key].Tags
}

func (f *fakeLibrary) ItemsByTag(_ context.Context, tags ...string) ([]models.LibraryItem, error) {
	var out []models.LibraryItem
	for _, key := range f.order {
		item := f.items[key]
		keep := true
		for _, tag := range tags {
			if excluded, ok := strings.CutPrefix(tag, "-"); ok {
				keep = keep && !item.HasTag(models.Tag(excluded))
			} else {
				keep = keep && item.HasTag(models.Tag(tag))
			}
		}
		if keep {
			copied := *item
			copied.Tags = slices.Clone(item.Tags)
			out = append(out, copied)
		}
	}
	return out, nil
}

func (f *fakeLibrary) Children(_ context.Context, key string) ([]models.Attachment, error) {
	if f.failChildren[key] {
		return nil, errInjected
	}
	return slices.Clone(f.children[key]), nil
}

func (f *fakeLibrary) DownloadFile(_ context.Context, key string, w io.Writer) error {
	content, ok := f.files[key]
	if !ok {
		return fmt.Errorf("file %s: %w", key, errInjected)
	}
	f.downloads = append(f.downloads, key)
	_, err := io.WriteString(w, content)
	return err
}

func (f *fakeLibrary) AddTags(_ context.Context, item *models.LibraryItem, tags ...models.Tag) error {
	if f.failAddTags[item.Key] {
		return errInjected
	}
	item.Tags = item.WithTags(tags...)
	item.Version++
	stored := f.items[item.Key]
	stored.Tags = slices.Clone(item.Tags)
	stored.Version = item.Version
	return nil
}

func (f *fakeLibrary) RemoveTag(_ context.Context, items []*models.LibraryItem, tag models.Tag) error {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
		item.Tags = item.WithoutTag(tag)
		f.items[item.Key].Tags = item.WithoutTag(tag)
	}
	f.removeCalls = append(f.removeCalls, keys)
	return nil
}

func (f *fakeLibrary) ItemTemplate(context.Context, string, string) (map[string]any, error) {
	return map[string]any{"itemType": "attachment", "linkMode": "imported_file", "title": "", "filename": ""}, nil
}

func (f *fakeLibrary) Item(_ context.Context, key string) (models.LibraryItem, error) {
	if item, ok := f.items[key]; ok {
		return *item, nil
	}
	for _, children := range f.children {
		for _, att := range children {
			if att.Key == key {
				return models.LibraryItem{Key: key, Version: att.Version, Title: att.Filename}, nil
			}
		}
	}
	return models.LibraryItem{}, fmt.Errorf("item %s: %w", key, errInjected)
}

func (f *fakeLibrary) CreateAttachment(_ context.Context, parentKey string, tmpl map[string]any) (string, error) {
	if f.failCreate {
		return "", errInjected
	}
	tmpl["parentItem"] = parentKey
	f.created = append(f.created, tmpl)
	filename, _ := tmpl["filename"].(string)
	return f.addRecord(parentKey, filename), nil
}

// UploadAttachment mirrors the hosted flow: the record exists before the
// file is sent, so a failed file upload still returns its key.
func (f *fakeLibrary) UploadAttachment(_ context.Context, parentKey, filename, localPath string) (string, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	key := f.addRecord(parentKey, filename)
	if f.failFileUpload {
		return key, errInjected
	}
	f.uploads = append(f.uploads, uploadedAttachment{ParentKey: parentKey, Filename: filename, Content: string(content)})
	return key, nil
}

func (f *fakeLibrary) DeleteItem(_ context.Context, key string, version int) error {
	if f.failDelete {
		return errInjected
	}
	for parent, children := range f.children {
		for i, att := range children {
			if att.Key != key {
				continue
			}
			if att.Version != version {
				return fmt.Errorf("delete %s at version %d: %w", key, version, errInjected)
			}
			f.children[parent] = slices.Delete(children, i, i+1)
			f.deleted = append(f.deleted, key)
			return nil
		}
	}
	return fmt.Errorf("delete %s: %w", key, errInjected)
}

func (f *fakeLibrary) addRecord(parentKey, filename string) string {
	f.nextKey++
	key := fmt.Sprintf("NEW%d", f.nextKey)
	modified := libraryClock
	f.children[parentKey] = append(f.children[parentKey], models.Attachment{
		Key:          key,
		ParentKey:    parentKey,
		Version:      1,
		Filename:     filename,
		ContentType:  models.MediaTypePDF,
		DateModified: &modified,
	})
	return key
}

type deviceUpload struct {
	Folder  string
	Name    string
	Content string
}

type fakeDevice struct {
	entries  map[string][]models.DeviceEntry
	meta     map[string]models.DeviceMetadata
	archives map[string][]byte

	failUpload map[string]bool
	failStat   bool
	failList   bool

	uploads   []deviceUpload
	downloads []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		entries:    map[string][]models.DeviceEntry{},
		meta:       map[string]models.DeviceMetadata{},
		archives:   map[string][]byte{},
		failUpload: map[string]bool{},
	}
}

// addNotebook places entry name in folder with a notebook archive that the
// fake renderer understands.
func (f *fakeDevice) addNotebook(t *testing.T, folder, name, modified string) {
	t.Helper()
	entry := models.DeviceEntry{Name: name, Folder: folder}
	f.entries[folder] = append(f.entries[folder], entry)
	if modified != "" {
		f.meta[entry.Path()] = models.DeviceMetadata{ID: "id-" + name, Name: name, ModifiedClient: modified}
	}
	f.archives[entry.Path()] = zipBytes(t, map[string]string{
		name + ".content":  "{}",
		"pages/0001.rm":    "strokes of " + name,
		name + ".metadata": "{}",
	})
}

func (f *fakeDevice) List(_ context.Context, folder string) ([]models.DeviceEntry, error) {
	if f.failList {
		return nil, errInjected
	}
	return slices.Clone(f.entries[folder]), nil
}

func (f *fakeDevice) Stat(_ context.Context, entryPath string) (models.DeviceMetadata, error) {
	if f.failStat {
		return models.DeviceMetadata{}, errInjected
	}
	meta, ok := f.meta[entryPath]
	if !ok {
		return models.DeviceMetadata{}, fmt.Errorf("stat %s: %w", entryPath, errInjected)
	}
	return meta, nil
}

func (f *fakeDevice) Download(_ context.Context, entryPath, dir string) (string, error) {
	data, ok := f.archives[entryPath]
	if !ok {
		return "", fmt.Errorf("geta %s: %w", entryPath, errInjected)
	}
	f.downloads = append(f.downloads, entryPath)
	archive := filepath.Join(dir, path.Base(entryPath)+".zip")
	return archive, os.WriteFile(archive, data, 0o644)
}

func (f *fakeDevice) Upload(ctx context.Context, localPath, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(localPath)
	if f.failUpload[name] {
		return errInjected
	}
	for _, up := range f.uploads {
		if up.Folder == folder && up.Name == name {
			return fmt.Errorf("put %s: %w", name, device.ErrEntryExists)
		}
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, deviceUpload{Folder: folder, Name: name, Content: string(content)})
	return nil
}

// fakeRenderer writes "{id} _remarks.pdf" for the notebook whose .content
// file it finds in the tree.
type fakeRenderer struct {
	fail  map[string]bool
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, treeDir, outDir string) error {
	r.calls++
	matches, err := filepath.Glob(filepath.Join(treeDir, "*.content"))
	if err != nil || len(matches) != 1 {
		return fmt.Errorf("no notebook in %s", treeDir)
	}
	id := strings.TrimSuffix(filepath.Base(matches[0]), ".content")
	if r.fail[id] {
		return errInjected
	}
	return os.WriteFile(filepath.Join(outDir, id+" _remarks.pdf"), []byte("annotated "+id), 0o644)
}

type fakeRemote struct {
	objects   map[string][]byte
	failTimes map[string]int
	attempts  map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: map[string][]byte{}, failTimes: map[string]int{}, attempts: map[string]int{}}
}

func (f *fakeRemote) Upload(_ context.Context, remote, localPath string) error {
	f.attempts[remote]++
	if f.failTimes[remote] < 0 || f.attempts[remote] <= f.failTimes[remote] {
		return errInjected
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[remote] = data
	return nil
}

func (f *fakeRemote) Download(_ context.Context, remote, localPath string) error {
	data, ok := f.objects[remote]
	if !ok {
		return fmt.Errorf("%s: %w", remote, errInjected)
	}
	return os.WriteFile(localPath, data, 0o644)
}

type fakeRecorder struct {
	transfers []models.Transfer
}

func (r *fakeRecorder) Record(_ context.Context, t models.Transfer) error {
	r.transfers = append(r.transfers, t)
	return nil
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		content, _ := io.ReadAll(rc)
		_ = rc.Close()
		out[f.Name] = string(content)
	}
	return out
}

const (
	testUnread = "/Zotero/unread"
	testRead   = "/Zotero/read"
)

type harness struct {
	lib      *fakeLibrary
	device   *fakeDevice
	remote   *fakeRemote
	renderer *fakeRenderer
	recorder *fakeRecorder
	area     *workdir.Area
	sleeps   []time.Duration
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	area, err := workdir.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = area.Close() })
	return &harness{
		lib:      newFakeLibrary(),
		device:   newFakeDevice(),
		renderer: &fakeRenderer{fail: map[string]bool{}},
		recorder: &fakeRecorder{},
		area:     area,
		now:      time.Unix(1700000000, 0),
	}
}

func (h *harness) withRemote() *harness {
	h.remote = newFakeRemote()
	return h
}

func (h *harness) syncer(t *testing.T) *Syncer {
	t.Helper()
	retrier := retry.New(3, 5*time.Second, nil)
	retrier.Sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	opts := Options{
		Library:    h.lib,
		Device:     h.device,
		Renderer:   h.renderer,
		WorkArea:   h.area,
		Retrier:    retrier,
		Recorder:   h.recorder,
		UnreadPath: testUnread,
		ReadPath:   testRead,
		RunID:      "run-1",
		Now:        func() time.Time { return h.now },
	}
	if h.remote != nil {
		opts.RemoteStore = h.remote
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new syncer: %v", err)
	}
	return s
}

// assertAreaEmpty checks every scratch directory was released.
func (h *harness) assertAreaEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.area.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("scratch directories left behind: %v", names)
	}
}

func ts(value string) *time.Time {
	t, err := models.ParseTimestamp(value)
	if err != nil {
		panic(err)
	}
	return &t
}
