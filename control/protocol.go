// Package control implements the line-oriented control socket used by viewers to switch
// display modes and probe liveness.
package control

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/walker_sim/snapshot"
)

// Reply tokens.
const (
	ReplyPong = "PONG"
	ReplyOK   = "OK"
	ReplyErr  = "ERR"
)

// ErrUnknownCommand is returned for any line that is not a supported command.
var ErrUnknownCommand = errors.New("control: unknown command")

// CommandKind enumerates the supported commands.
type CommandKind int

const (
	CommandPing CommandKind = iota
	CommandMode
	CommandSummary
)

func (k CommandKind) String() string {
	switch k {
	case CommandPing:
		return "PING"
	case CommandMode:
		return "MODE"
	case CommandSummary:
		return "SUMMARY"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is one parsed control line.
type Command struct {
	Kind  CommandKind
	Value int32
}

// String renders the command in wire form.
func (c Command) String() string {
	if c.Kind == CommandPing {
		return "PING"
	}
	return fmt.Sprintf("%s %d", c.Kind, c.Value)
}

var commands = map[string]Command{
	"PING":      {Kind: CommandPing},
	"MODE 1":    {Kind: CommandMode, Value: snapshot.ModeInteractive},
	"MODE 2":    {Kind: CommandMode, Value: snapshot.ModeSummary},
	"SUMMARY 0": {Kind: CommandSummary, Value: snapshot.SummaryAverageSteps},
	"SUMMARY 1": {Kind: CommandSummary, Value: snapshot.SummaryProbability},
}

// ParseCommand parses one line. Keywords are case-sensitive; surrounding whitespace,
// including a trailing CR, is ignored.
func ParseCommand(line string) (Command, error) {
	cmd, ok := commands[strings.TrimSpace(line)]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(line))
	}
	return cmd, nil
}

// Target is the state a command mutates.
type Target interface {
	SetMode(mode int32) error
	SetSummaryView(view int32) error
}

// Execute applies cmd to t and returns the reply token.
func Execute(t Target, cmd Command) string {
	switch cmd.Kind {
	case CommandPing:
		return ReplyPong
	case CommandMode:
		if err := t.SetMode(cmd.Value); err != nil {
			return ReplyErr
		}
		return ReplyOK
	case CommandSummary:
		if err := t.SetSummaryView(cmd.Value); err != nil {
			return ReplyErr
		}
		return ReplyOK
	}
	return ReplyErr
}

// Apply parses line, applies it to t and returns the reply token. Unknown lines give
// ReplyErr and leave t untouched.
func Apply(t Target, line string) string {
	cmd, err := ParseCommand(line)
	if err != nil {
		return ReplyErr
	}
	return Execute(t, cmd)
}
