package workdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	defer area.Close()

	first, err := area.Acquire("paper")
	if err != nil {
		t.Fatalf("acquire first: %v", err)
	}
	second, err := area.Acquire("paper")
	if err != nil {
		t.Fatalf("acquire second: %v", err)
	}
	if first.Dir() == second.Dir() {
		t.Fatalf("expected distinct scratch dirs, got %q twice", first.Dir())
	}
	if !strings.HasPrefix(filepath.Base(first.Dir()), "paper-") {
		t.Fatalf("expected identity in dir name, got %q", first.Dir())
	}

	path, err := first.Path("paper.pdf")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(first.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected scratch removed, stat err=%v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second release should be a noop: %v", err)
	}
	if _, err := os.Stat(second.Dir()); err != nil {
		t.Fatalf("sibling scratch should survive: %v", err)
	}

	root := area.Root()
	if err := area.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected area removed, stat err=%v", err)
	}
}

func TestScratchPathRejectsEscapes(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	defer area.Close()

	scratch, err := area.Acquire("doc")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	for _, name := range []string{"", "/etc/passwd", "..", "../x", "a/../../x"} {
		if _, err := scratch.Path(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	if _, err := scratch.Sub("tree/pages"); err != nil {
		t.Fatalf("sub: %v", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"paper":           "paper",
		"(Annot) a/b.pdf": "_Annot__a_b.pdf",
		"":                "doc",
		"..":              "doc",
	}
	for in, want := range tests {
		if got := sanitize(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitize(strings.Repeat("x", 100)); len(got) != 48 {
		t.Fatalf("expected truncation to 48, got %d", len(got))
	}
}
