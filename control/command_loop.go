package control

import "context"

// CommandSource provides control commands from an external producer.
type CommandSource[T any] interface {
	// WaitCommand blocks until a command is available. ok=false means the source is
	// exhausted or broken.
	WaitCommand(ctx context.Context) (cmd T, ok bool)
}

// CommandHandler consumes control commands and determines whether processing should continue.
type CommandHandler[T any] interface {
	HandleCommand(T) bool
}

// CommandHandlerFunc adapts a function into a CommandHandler.
type CommandHandlerFunc[T any] func(T) bool

// HandleCommand calls the underlying function.
func (f CommandHandlerFunc[T]) HandleCommand(cmd T) bool {
	if f == nil {
		return true
	}
	return f(cmd)
}

// CommandLoop pulls and dispatches control commands.
type CommandLoop[T any] struct {
	source  CommandSource[T]
	handler CommandHandler[T]
}

// NewCommandLoop creates a command loop with the given source and handler.
func NewCommandLoop[T any](source CommandSource[T], handler CommandHandler[T]) *CommandLoop[T] {
	return &CommandLoop[T]{
		source:  source,
		handler: handler,
	}
}

// WaitAndHandle blocks until a command is available and dispatches it. It reports
// whether the loop should keep going.
func (c *CommandLoop[T]) WaitAndHandle(ctx context.Context) bool {
	if c == nil || c.handler == nil || c.source == nil {
		return false
	}
	cmd, ok := c.source.WaitCommand(ctx)
	if !ok {
		return false
	}
	return c.handler.HandleCommand(cmd)
}

// Run dispatches commands until the source is exhausted, the handler stops or ctx ends.
// It returns the number of commands handled.
func (c *CommandLoop[T]) Run(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		if !c.WaitAndHandle(ctx) {
			break
		}
		n++
	}
	return n
}
