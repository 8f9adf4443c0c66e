package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/walker_sim/registry"
	"github.com/example/walker_sim/snapshot"
)

func TestRenderInteractive(t *testing.T) {
	s := &snapshot.Snapshot{WorldSize: 3, FullSize: 3, WalkerX: 0, WalkerY: 2, Mode: snapshot.ModeInteractive, CurrentRep: 4, Replications: 10}
	s.Obstacles[0][2] = 1
	var buf bytes.Buffer
	render(&buf, s)
	want := "Replication 4/10  mode interactive\n..#\n.C.\nW..\n"
	if buf.String() != want {
		t.Fatalf("render =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestRenderTruncatedWorldMarksRealCenter(t *testing.T) {
	s := &snapshot.Snapshot{WorldSize: 3, FullSize: 10, WalkerX: 2, WalkerY: 2, Mode: snapshot.ModeInteractive}
	var buf bytes.Buffer
	render(&buf, s)
	if strings.Contains(buf.String(), "C") {
		t.Fatalf("center outside the window was drawn: %q", buf.String())
	}

	s.FullSize, s.WalkerX, s.WalkerY = 5, 0, 0
	buf.Reset()
	render(&buf, s)
	want := "Replication 0/0  mode interactive\nWorld is 5x5, showing the top-left 3x3\nW..\n...\n..C\n"
	if buf.String() != want {
		t.Fatalf("render =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestRenderSummaryViews(t *testing.T) {
	s := &snapshot.Snapshot{WorldSize: 2, FullSize: 70, Mode: snapshot.ModeSummary, CurrentRep: 4, Replications: 4, Finished: 1}
	s.SuccessCount[0][0], s.TotalSteps[0][0] = 2, 10
	s.Obstacles[1][1] = 1

	var buf bytes.Buffer
	render(&buf, s)
	out := buf.String()
	if !strings.Contains(out, "finished") || !strings.Contains(out, "World is 70x70") {
		t.Fatalf("header missing state: %q", out)
	}
	if !strings.Contains(out, "     5     -") || !strings.Contains(out, "     #") {
		t.Fatalf("average view wrong: %q", out)
	}

	s.SummaryView = snapshot.SummaryProbability
	buf.Reset()
	render(&buf, s)
	if !strings.Contains(buf.String(), "   50%    0%") {
		t.Fatalf("probability view wrong: %q", buf.String())
	}
}

func TestListAndPick(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.txt")
	if err := registry.Append(path, registry.Entry{PID: os.Getpid(), Shm: "a", Sock: "/tmp/a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	var buf bytes.Buffer
	if err := list(&buf, path); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), "(alive)") {
		t.Fatalf("list output %q", buf.String())
	}
	e, err := pick(path, 0)
	if err != nil || e.Shm != "a" {
		t.Fatalf("pick = %v, %v", e, err)
	}
	if _, err := pick(path, 12345678); !errors.Is(err, errNoServer) {
		t.Fatalf("unknown pid: %v", err)
	}
	if _, err := pick(filepath.Join(dir, "missing.txt"), 0); !errors.Is(err, errNoServer) {
		t.Fatalf("empty registry: %v", err)
	}
}

func TestShowReadsRegion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.txt")
	region, err := snapshot.Create(dir, "walker_shm_test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer region.Unlink()
	defer region.Close()
	region.Publish(&snapshot.Snapshot{WorldSize: 3, FullSize: 3, WalkerX: 1, WalkerY: 1, Mode: snapshot.ModeInteractive, CurrentRep: 1, Replications: 2})
	if err := registry.Append(path, registry.Entry{PID: os.Getpid(), Shm: "walker_shm_test", Sock: "/tmp/x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var buf bytes.Buffer
	if err := show(&buf, path, os.Getpid(), dir); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(buf.String(), ".W.") {
		t.Fatalf("show output %q", buf.String())
	}
}
