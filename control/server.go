package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/walker_sim/logging"
)

// DefaultAcceptTimeout bounds each accept so the listener re-checks the finished flag.
const DefaultAcceptTimeout = 100 * time.Millisecond

// maxCommandLine caps a single command line.
const maxCommandLine = 4096

// Server accepts viewer connections on a unix stream socket and serves one handler
// goroutine per connection.
type Server struct {
	path          string
	ln            *net.UnixListener
	target        Target
	done          <-chan struct{}
	acceptTimeout time.Duration

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool

	wg          sync.WaitGroup
	firstViewer chan struct{}
	firstOnce   sync.Once
}

type session struct {
	id   uuid.UUID
	conn net.Conn
	log  *logging.Logger
}

// Listen binds the socket at path, replacing a stale socket file. done is the
// simulation's finished signal; once it closes the listener stops accepting and live
// connections are dropped.
func Listen(path string, target Target, done <-chan struct{}, acceptTimeout time.Duration) (*Server, error) {
	if target == nil {
		return nil, fmt.Errorf("control: nil target")
	}
	if acceptTimeout <= 0 {
		acceptTimeout = DefaultAcceptTimeout
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("control: remove stale socket %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("control: listen %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)
	return &Server{
		path:          path,
		ln:            ln,
		target:        target,
		done:          done,
		acceptTimeout: acceptTimeout,
		sessions:      make(map[*session]struct{}),
		firstViewer:   make(chan struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// FirstViewer is closed when the first connection is accepted.
func (s *Server) FirstViewer() <-chan struct{} { return s.firstViewer }

// Start runs the accept loop in a goroutine joined by Shutdown.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve()
	}()
}

func (s *Server) serve() {
	log := logging.GetLogger()
	log.Infof("Control socket listening on %s", s.path)
	defer log.Debugf("Control listener on %s stopped", s.path)
	for {
		if s.stopping() {
			s.ln.Close()
			return
		}
		s.ln.SetDeadline(time.Now().Add(s.acceptTimeout))
		conn, err := s.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warnf("Accept on %s failed: %v", s.path, err)
			continue
		}
		s.spawn(conn)
	}
}

func (s *Server) stopping() bool {
	select {
	case <-s.done:
		return true
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) spawn(conn net.Conn) {
	id := uuid.New()
	sess := &session{id: id, conn: conn, log: logging.GetLogger().With("session", id.String())}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	s.firstOnce.Do(func() { close(s.firstViewer) })
	go func() {
		defer s.wg.Done()
		s.handle(sess)
	}()
}

func (s *Server) handle(sess *session) {
	ended := make(chan struct{})
	defer func() {
		close(ended)
		sess.conn.Close()
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
	}()
	go func() {
		select {
		case <-s.done:
			sess.conn.Close()
		case <-ended:
		}
	}()

	sess.log.Infof("Viewer connected")
	src := newLineSource(sess.conn, sess.log)
	w := bufio.NewWriter(sess.conn)
	handler := CommandHandlerFunc[string](func(line string) bool {
		reply := Apply(s.target, line)
		sess.log.Debugf("%q -> %s", line, reply)
		w.WriteString(reply)
		w.WriteByte('\n')
		if err := w.Flush(); err != nil {
			sess.log.Debugf("Reply failed: %v", err)
			return false
		}
		return true
	})
	n := NewCommandLoop[string](src, handler).Run(context.Background())
	sess.log.Infof("Viewer disconnected after %d commands", n)
}

// Shutdown stops accepting, closes every live connection and waits for all handlers
// and the accept loop. The socket file is removed.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	for sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()

	s.ln.Close()
	s.wg.Wait()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.GetLogger().Warnf("Remove socket %s: %v", s.path, err)
	}
}

// ActiveSessions returns the number of connected viewers.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lineSource reads newline-terminated commands from a connection.
type lineSource struct {
	sc  *bufio.Scanner
	log *logging.Logger
}

func newLineSource(r io.Reader, log *logging.Logger) *lineSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256), maxCommandLine)
	return &lineSource{sc: sc, log: log}
}

func (l *lineSource) WaitCommand(ctx context.Context) (string, bool) {
	if l.sc.Scan() {
		return l.sc.Text(), true
	}
	if err := l.sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		l.log.Debugf("Read failed: %v", err)
	}
	return "", false
}
