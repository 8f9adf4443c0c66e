package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/snapshot"
	"github.com/example/walker_sim/state"
)

func TestParseCommand(t *testing.T) {
	good := map[string]Command{
		"PING":        {Kind: CommandPing},
		"MODE 1\r":    {Kind: CommandMode, Value: snapshot.ModeInteractive},
		" MODE 2 ":    {Kind: CommandMode, Value: snapshot.ModeSummary},
		"SUMMARY 0":   {Kind: CommandSummary, Value: snapshot.SummaryAverageSteps},
		"SUMMARY 1\n": {Kind: CommandSummary, Value: snapshot.SummaryProbability},
	}
	for line, want := range good {
		got, err := ParseCommand(line)
		if err != nil || got != want {
			t.Fatalf("ParseCommand(%q) = %v, %v", line, got, err)
		}
	}
	for _, line := range []string{"ping", "MODE 3", "MODE", "SUMMARY 2", "MODE  1", "", "QUIT"} {
		if _, err := ParseCommand(line); !errors.Is(err, ErrUnknownCommand) {
			t.Fatalf("ParseCommand(%q) should fail, got %v", line, err)
		}
	}
	if s := (Command{Kind: CommandSummary, Value: 1}).String(); s != "SUMMARY 1" {
		t.Fatalf("String() = %q", s)
	}
}

type fakeTarget struct {
	mode, view int32
	fail       bool
}

func (f *fakeTarget) SetMode(m int32) error {
	if f.fail {
		return errors.New("rejected")
	}
	f.mode = m
	return nil
}

func (f *fakeTarget) SetSummaryView(v int32) error {
	if f.fail {
		return errors.New("rejected")
	}
	f.view = v
	return nil
}

func TestApply(t *testing.T) {
	target := &fakeTarget{}
	if r := Apply(target, "PING"); r != ReplyPong {
		t.Fatalf("PING -> %s", r)
	}
	if r := Apply(target, "MODE 1"); r != ReplyOK || target.mode != 1 {
		t.Fatalf("MODE 1 -> %s (mode %d)", r, target.mode)
	}
	if r := Apply(target, "SUMMARY 1"); r != ReplyOK || target.view != 1 {
		t.Fatalf("SUMMARY 1 -> %s (view %d)", r, target.view)
	}
	if r := Apply(target, "mode 2"); r != ReplyErr || target.mode != 1 {
		t.Fatalf("lowercase command must be rejected without effect")
	}
	target.fail = true
	if r := Apply(target, "MODE 2"); r != ReplyErr {
		t.Fatalf("failing target -> %s", r)
	}
}

func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ctl")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func newCoordinator(t *testing.T) *state.Coordinator {
	t.Helper()
	g, _ := core.NewGrid(5)
	c, err := state.New(state.Config{Grid: g, Probabilities: core.Uniform(), Replications: 10, MaxSteps: 10})
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return c
}

func startServer(t *testing.T, coord *state.Coordinator) *Server {
	t.Helper()
	srv, err := Listen(socketPath(t), coord, coord.Done(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestServerProtocol(t *testing.T) {
	coord := newCoordinator(t)
	srv := startServer(t, coord)

	c, err := Dial(srv.Path(), 5, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	select {
	case <-srv.FirstViewer():
	case <-time.After(2 * time.Second):
		t.Fatalf("first viewer not signalled")
	}

	cases := []struct{ cmd, want string }{
		{"PING", ReplyPong},
		{"MODE 1", ReplyOK},
		{"SUMMARY 1", ReplyOK},
		{"HELLO", ReplyErr},
		{"MODE 9", ReplyErr},
		{"PING", ReplyPong},
	}
	for _, tc := range cases {
		got, err := c.Send(tc.cmd)
		if err != nil {
			t.Fatalf("Send(%q): %v", tc.cmd, err)
		}
		if got != tc.want {
			t.Fatalf("Send(%q) = %q, want %q", tc.cmd, got, tc.want)
		}
	}
	mode, view := coord.View()
	if mode != snapshot.ModeInteractive || view != snapshot.SummaryProbability {
		t.Fatalf("coordinator view = %d/%d", mode, view)
	}
}

func TestServerConcurrentClients(t *testing.T) {
	coord := newCoordinator(t)
	srv := startServer(t, coord)

	const clients = 8
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := Dial(srv.Path(), 20, 10*time.Millisecond)
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()
			for j := 0; j < 25; j++ {
				cmd := fmt.Sprintf("MODE %d", 1+(i+j)%2)
				if j%2 == 1 {
					cmd = fmt.Sprintf("SUMMARY %d", (i+j)%2)
				}
				reply, err := c.Send(cmd)
				if err != nil {
					errs <- err
					return
				}
				if reply != ReplyOK {
					errs <- fmt.Errorf("%s -> %s", cmd, reply)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("client: %v", err)
	}

	// After every command settled, a final command from a fresh client wins.
	c, err := Dial(srv.Path(), 5, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if _, err := c.Send("MODE 2"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := c.Send("SUMMARY 0"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	mode, view := coord.View()
	if mode != snapshot.ModeSummary || view != snapshot.SummaryAverageSteps {
		t.Fatalf("coordinator view = %d/%d", mode, view)
	}
	s := coord.Snapshot()
	if s.Mode != mode || s.SummaryView != view {
		t.Fatalf("snapshot view %d/%d disagrees with coordinator", s.Mode, s.SummaryView)
	}
}

func TestServerStopsWhenFinished(t *testing.T) {
	coord := newCoordinator(t)
	srv := startServer(t, coord)

	c, err := Dial(srv.Path(), 5, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	coord.Finish()
	deadline := time.Now().Add(2 * time.Second)
	for srv.ActiveSessions() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler still active after finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := c.Send("PING"); err == nil {
		t.Fatalf("connection should be closed after finish")
	}

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Shutdown did not join handlers")
	}
	if _, err := os.Stat(srv.Path()); !os.IsNotExist(err) {
		t.Fatalf("socket file left behind: %v", err)
	}
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	coord := newCoordinator(t)
	srv, err := Listen(socketPath(t), coord, coord.Done(), 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv.Start()
	c, err := Dial(srv.Path(), 5, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	srv.Shutdown()
	if n := srv.ActiveSessions(); n != 0 {
		t.Fatalf("sessions after shutdown = %d", n)
	}
}

func TestDialGivesUp(t *testing.T) {
	start := time.Now()
	_, err := Dial(filepath.Join(os.TempDir(), "walker-no-such.sock"), 3, 5*time.Millisecond)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("dial did not wait between attempts")
	}
}

type sliceSource struct{ items []string }

func (s *sliceSource) WaitCommand(ctx context.Context) (string, bool) {
	if len(s.items) == 0 {
		return "", false
	}
	v := s.items[0]
	s.items = s.items[1:]
	return v, true
}

func TestCommandLoopStopsOnHandler(t *testing.T) {
	src := &sliceSource{items: []string{"a", "b", "stop", "c"}}
	var seen []string
	n := NewCommandLoop[string](src, CommandHandlerFunc[string](func(s string) bool {
		seen = append(seen, s)
		return s != "stop"
	})).Run(context.Background())
	if n != 2 || len(seen) != 3 || len(src.items) != 1 {
		t.Fatalf("n=%d seen=%v remaining=%v", n, seen, src.items)
	}
}
