// Command walkerctl lists running walker servers, sends control commands and prints the
// shared snapshot of a server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/akamensky/argparse"

	"github.com/example/walker_sim/control"
	"github.com/example/walker_sim/registry"
	"github.com/example/walker_sim/snapshot"
)

var errNoServer = errors.New("no running server")

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

func run(args []string, out io.Writer) int {
	parser := argparse.NewParser("walkerctl", "Inspect and control walker servers")
	registryPath := parser.String("G", "registry", &argparse.Options{Default: registry.DefaultPath, Help: "server registry file"})

	listCmd := parser.NewCommand("list", "List registered servers")

	sendCmd := parser.NewCommand("send", "Send a control command (PING, MODE 1|2, SUMMARY 0|1)")
	sendPID := sendCmd.Int("p", "pid", &argparse.Options{Default: 0, Help: "server pid (default: the only live server)"})
	command := sendCmd.String("c", "command", &argparse.Options{Required: true, Help: "command line to send"})

	showCmd := parser.NewCommand("show", "Print the current snapshot of a server")
	showPID := showCmd.Int("p", "pid", &argparse.Options{Default: 0, Help: "server pid (default: the only live server)"})
	shmDir := showCmd.String("d", "shm-dir", &argparse.Options{Default: snapshot.DefaultDir(), Help: "directory holding snapshot regions"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, parser.Usage(err))
		return 2
	}

	var err error
	switch {
	case listCmd.Happened():
		err = list(out, *registryPath)
	case sendCmd.Happened():
		err = send(out, *registryPath, *sendPID, *command)
	case showCmd.Happened():
		err = show(out, *registryPath, *showPID, *shmDir)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func list(out io.Writer, path string) error {
	entries, err := registry.List(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := "alive"
		if !e.Alive() {
			status = "stale"
		}
		fmt.Fprintf(out, "%s  (%s)\n", e, status)
	}
	return nil
}

// pick returns the entry for pid, or the single live entry when pid is zero.
func pick(path string, pid int) (registry.Entry, error) {
	entries, err := registry.List(path)
	if err != nil {
		return registry.Entry{}, err
	}
	var live []registry.Entry
	for _, e := range entries {
		if pid != 0 && e.PID == pid {
			return e, nil
		}
		if pid == 0 && e.Alive() {
			live = append(live, e)
		}
	}
	if pid != 0 {
		return registry.Entry{}, fmt.Errorf("%w with pid %d", errNoServer, pid)
	}
	switch len(live) {
	case 0:
		return registry.Entry{}, errNoServer
	case 1:
		return live[0], nil
	default:
		return registry.Entry{}, fmt.Errorf("%d servers running, choose one with --pid", len(live))
	}
}

func send(out io.Writer, path string, pid int, line string) error {
	e, err := pick(path, pid)
	if err != nil {
		return err
	}
	c, err := control.Dial(e.Sock, control.DefaultDialAttempts, control.DefaultDialInterval)
	if err != nil {
		return err
	}
	defer c.Close()
	reply, err := c.Send(line)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, reply)
	return nil
}

func show(out io.Writer, path string, pid int, dir string) error {
	e, err := pick(path, pid)
	if err != nil {
		return err
	}
	region, err := snapshot.Open(dir, e.Shm, false)
	if err != nil {
		return err
	}
	defer region.Close()
	s, err := region.Read()
	if err != nil {
		return err
	}
	render(out, &s)
	return nil
}
