package jewelgen

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writePNG writes a small valid PNG for tests that exercise image loading.
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func TestJobID(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	writeFile(t, a, "same bytes")
	writeFile(t, b, "same bytes")

	id1, err := JobID(a, "ring")
	if err != nil {
		t.Fatal(err)
	}
	if len(id1) != 12 || !strings.HasPrefix(id1, "J") {
		t.Errorf("id = %q, want J + 11 hex chars", id1)
	}

	// content-addressed: same bytes and type give the same id even from a
	// different file name
	id2, _ := JobID(b, "ring")
	if id1 != id2 {
		t.Errorf("ids differ for identical content: %q vs %q", id1, id2)
	}

	// the declared type is part of the identity
	id3, _ := JobID(a, "necklace")
	if id3 == id1 {
		t.Error("ids match across jewelry types")
	}
}

// fakeRunner produces artifact files like the real worker binaries, with a
// configurable set of artifacts that fail.
type fakeRunner struct {
	fail  map[string]bool
	calls []string
}

func (r *fakeRunner) Run(_ context.Context, artifact, _, _, outDir string) error {
	r.calls = append(r.calls, artifact)
	if r.fail[artifact] {
		return fmt.Errorf("synthetic %s failure", artifact)
	}

	name := "desc.md"
	switch {
	case artifact == ArtifactCloseup:
		name = "wear_closeup_2x3_01.png"
	case artifact == ArtifactWear:
		name = "wear_2x3_01.png"
	case strings.HasPrefix(artifact, ArtifactStyled):
		name = "styled_2x3_01.png"
	}

	// like the real binaries: replace any leftover file (or latest symlink)
	// rather than writing through it
	p := filepath.Join(outDir, name)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	payload := fmt.Sprintf("%s-call%d", artifact, len(r.calls))
	return os.WriteFile(p, []byte(payload), 0o644)
}

func testPipeline(t *testing.T, runner Runner) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	cfg := &Config{Root: root, OutRoot: "out"}
	return &Pipeline{Cfg: cfg, Runner: runner}, root
}

func TestGenerateAllDone(t *testing.T) {
	runner := &fakeRunner{}
	p, root := testPipeline(t, runner)

	input := filepath.Join(root, "inbox", "ring", "r1.png")
	writePNG(t, input, 64, 64)

	res, err := p.GenerateAll(context.Background(), input, "ring")
	if err != nil {
		t.Fatal(err)
	}

	if res.Status != StatusDone {
		t.Errorf("status = %q, want done", res.Status)
	}
	want := []string{"desc", "styled", "wear", "closeup"}
	if len(runner.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", runner.calls, want)
	}
	for i, a := range want {
		if runner.calls[i] != a {
			t.Errorf("call %d = %q, want %q", i, runner.calls[i], a)
		}
	}

	// every artifact promoted to v1 with a live symlink
	for _, a := range want {
		if res.Artifacts[a] != 1 {
			t.Errorf("%s version = %d, want 1", a, res.Artifacts[a])
		}
		link := filepath.Join(res.OutDir, a, artifactFileName(a))
		if _, err := os.Stat(link); err != nil {
			t.Errorf("%s latest link broken: %v", a, err)
		}
	}

	// work image prepared
	if _, err := os.Stat(filepath.Join(p.Cfg.JobWorkDir(res.JobID), "input.png")); err != nil {
		t.Errorf("work image missing: %v", err)
	}

	meta, err := LoadMeta(filepath.Join(res.OutDir, "meta.json"))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != StatusDone || meta.CompletedAt == nil {
		t.Errorf("persisted meta = %+v", meta)
	}
}

func TestGenerateAllPartial(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"wear": true}}
	p, root := testPipeline(t, runner)

	input := filepath.Join(root, "inbox", "ring", "r1.png")
	writePNG(t, input, 64, 64)

	res, err := p.GenerateAll(context.Background(), input, "ring")
	if err != nil {
		t.Fatal(err)
	}

	if res.Status != StatusPartial {
		t.Errorf("status = %q, want partial", res.Status)
	}
	if len(runner.calls) != 4 {
		t.Errorf("a failing artifact must not abort the job: calls = %v", runner.calls)
	}
	if len(res.Errors) != 1 || res.Errors[0].Artifact != "wear" {
		t.Errorf("errors = %+v", res.Errors)
	}
	if _, ok := res.Artifacts["wear"]; ok {
		t.Error("failed artifact recorded a version")
	}
	if res.Artifacts["closeup"] != 1 {
		t.Error("artifact after the failure did not run")
	}
}

func TestGenerateAllNonStandardType(t *testing.T) {
	runner := &fakeRunner{}
	p, root := testPipeline(t, runner)

	input := filepath.Join(root, "inbox", "brooch", "b1.png")
	writePNG(t, input, 64, 64)

	res, err := p.GenerateAll(context.Background(), input, "brooch")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"desc", "styled", "styled2", "styled3"}
	for i, a := range want {
		if runner.calls[i] != a {
			t.Fatalf("calls = %v, want %v", runner.calls, want)
		}
	}
	if res.Status != StatusDone {
		t.Errorf("status = %q, want done", res.Status)
	}
	if _, err := os.Stat(filepath.Join(res.OutDir, "styled2", "styled2_v1.png")); err != nil {
		t.Errorf("styled2 version file missing: %v", err)
	}
}

func TestRegenerateBumpsVersion(t *testing.T) {
	runner := &fakeRunner{}
	p, root := testPipeline(t, runner)

	input := filepath.Join(root, "inbox", "ring", "r1.png")
	writePNG(t, input, 64, 64)

	res, err := p.GenerateAll(context.Background(), input, "ring")
	if err != nil {
		t.Fatal(err)
	}

	meta, err := p.Regenerate(context.Background(), res.JobID, "styled")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Artifacts["styled"].Latest != 2 {
		t.Errorf("styled latest = %d, want 2", meta.Artifacts["styled"].Latest)
	}

	target, err := os.Readlink(filepath.Join(res.OutDir, "styled", "styled.png"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "styled_v2.png" {
		t.Errorf("link target = %q, want styled_v2.png", target)
	}
}

func TestRegenerateDescKeepsHistory(t *testing.T) {
	runner := &fakeRunner{}
	p, root := testPipeline(t, runner)

	input := filepath.Join(root, "inbox", "ring", "r1.png")
	writePNG(t, input, 64, 64)

	res, err := p.GenerateAll(context.Background(), input, "ring")
	if err != nil {
		t.Fatal(err)
	}

	descDir := filepath.Join(res.OutDir, "desc")
	v1, err := os.ReadFile(filepath.Join(descDir, "desc_v1.md"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Regenerate(context.Background(), res.JobID, "desc"); err != nil {
		t.Fatal(err)
	}

	// v1 survives the regeneration untouched
	got, err := os.ReadFile(filepath.Join(descDir, "desc_v1.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(v1) {
		t.Errorf("v1 content changed by regen: %q -> %q", v1, got)
	}

	// v2 is a distinct regular file, not a link back to v1
	fi, err := os.Lstat(filepath.Join(descDir, "desc_v2.md"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		t.Error("desc_v2.md is a symlink")
	}
	v2, err := os.ReadFile(filepath.Join(descDir, "desc_v2.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v2) == string(v1) {
		t.Error("v2 content identical to v1, regen produced nothing new")
	}

	target, err := os.Readlink(filepath.Join(descDir, "desc.md"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "desc_v2.md" {
		t.Errorf("link target = %q, want desc_v2.md", target)
	}
}

func TestRegenerateRebuildsWorkImage(t *testing.T) {
	runner := &fakeRunner{}
	p, root := testPipeline(t, runner)

	input := filepath.Join(root, "inbox", "ring", "r1.png")
	writePNG(t, input, 64, 64)

	res, err := p.GenerateAll(context.Background(), input, "ring")
	if err != nil {
		t.Fatal(err)
	}

	// simulate a cleaned work directory
	if err := os.RemoveAll(p.Cfg.JobWorkDir(res.JobID)); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Regenerate(context.Background(), res.JobID, "desc"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(p.Cfg.JobWorkDir(res.JobID), "input.png")); err != nil {
		t.Errorf("work image not rebuilt: %v", err)
	}
}

func TestRegenerateUnknownJob(t *testing.T) {
	p, _ := testPipeline(t, &fakeRunner{})
	if _, err := p.Regenerate(context.Background(), "Jmissing", "desc"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestProducedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "wear_closeup_2x3_01.png"), "x")

	got, err := producedFile(dir, ArtifactCloseup)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "wear_closeup_2x3_01.png" {
		t.Errorf("got %q", got)
	}

	if _, err := producedFile(t.TempDir(), ArtifactStyled); err == nil {
		t.Error("expected error for empty output dir")
	}
}

func TestArtifactsFor(t *testing.T) {
	if got := ArtifactsFor("ring"); len(got) != 4 || got[2] != ArtifactWear {
		t.Errorf("ring artifacts = %v", got)
	}
	if got := ArtifactsFor("hairpin"); len(got) != 4 || got[3] != ArtifactStyled3 {
		t.Errorf("hairpin artifacts = %v", got)
	}
}
