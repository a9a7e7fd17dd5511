// Package server exposes the engine over a unix socket speaking the lume
// wire protocol. It is the process boundary consumed by launcher front
// ends: search, run, rescan and stats map one to one onto engine calls,
// and run additionally spawns the selected application's command.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nettle-sh/lume/internal/config"
	"github.com/nettle-sh/lume/internal/engine"
	"github.com/nettle-sh/lume/internal/index"
	"github.com/nettle-sh/lume/parser"
)

// Server handles unix socket connections and command execution.
type Server struct {
	listener net.Listener
	eng      *engine.Engine
	cfg      config.Config
	log      *slog.Logger
	running  bool
	mu       sync.RWMutex
}

// NewServer creates a server listening on the configured socket path. A
// stale socket file from a previous run is removed first.
func NewServer(eng *engine.Engine, cfg config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	socketDir := filepath.Dir(cfg.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return nil, err
	}
	os.Remove(cfg.SocketPath)

	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		eng:      eng,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Start accepts connections until the context is cancelled or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				return nil
			}
			continue
		}

		go s.handleConnection(conn)
	}
}

// Stop stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return s.listener.Close()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	p, err := parser.NewParser(conn)
	if err != nil {
		s.log.Debug("server: rejecting connection", "error", err)
		s.writeError(conn, "parser", "invalid header", err.Error())
		return
	}

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.log.Debug("server: parse error", "error", err)
			s.writeError(conn, "parser", "parse error", err.Error())
			continue
		}

		s.executeCommand(conn, cmd)
	}
}

func (s *Server) executeCommand(conn net.Conn, cmd *parser.Command) {
	switch cmd.Name {
	case "search":
		s.handleSearch(conn, cmd)
	case "run":
		s.handleRun(conn, cmd)
	case "rescan":
		s.handleRescan(conn)
	case "stats":
		s.handleStats(conn)
	default:
		s.writeError(conn, cmd.Name, "unknown command", "Command not recognized")
	}
}

// handleSearch ranks the index against the query argument. An omitted or
// empty query lists every entry by usage weight.
func (s *Server) handleSearch(conn net.Conn, cmd *parser.Command) {
	query := ""
	limit := s.cfg.ListLimit
	for _, arg := range cmd.Args {
		switch arg.Type {
		case parser.TypeString:
			query = arg.Str
		case parser.TypeInt:
			limit = int(arg.Int)
		}
	}

	results := s.eng.Search(query, limit)

	attrs := fmt.Sprintf("cmd: search\nstatus: 0\ncount: %d\n\n", len(results))
	body := strings.Builder{}
	for _, r := range results {
		body.WriteString(fmt.Sprintf("%s\t%d\t%d\t%s\t%s\n",
			r.Entry.ID, r.Score, r.Entry.UsageCount, r.Entry.Name, r.Entry.Icon))
	}
	s.writeResponse(conn, attrs+body.String())
}

// handleRun records the launch in the engine and spawns the entry's
// command. An unknown id is reported to the caller, not logged as an error.
func (s *Server) handleRun(conn net.Conn, cmd *parser.Command) {
	if len(cmd.Args) == 0 || cmd.Args[0].Type != parser.TypeString {
		s.writeError(conn, "run", "missing id", "run command requires an id argument")
		return
	}
	id := cmd.Args[0].Str

	entry, err := s.eng.Run(id)
	if err != nil {
		s.writeError(conn, "run", "not found", "No application with the requested id.")
		return
	}

	pid, err := s.spawn(entry)
	if err != nil {
		s.log.Error("server: launching application", "name", entry.Name, "error", err)
		s.writeError(conn, "run", "execution failed", err.Error())
		return
	}

	s.writeResponse(conn, fmt.Sprintf("cmd: run\nstatus: 0\nid: %s\npid: %d\n\n", id, pid))
}

func (s *Server) handleRescan(conn net.Conn) {
	count := s.eng.Rescan()
	s.writeResponse(conn, fmt.Sprintf("cmd: rescan\nstatus: 0\nentries: %d\n\n", count))
}

func (s *Server) handleStats(conn net.Conn) {
	ws := s.eng.WatchStats()
	s.writeResponse(conn, fmt.Sprintf(
		"cmd: stats\nstatus: 0\nentries: %d\nwatch-events: %d\nwatch-batches: %d\n\n",
		s.eng.Count(), ws.Events, ws.Batches))
}

// spawn starts the entry's command, wrapped in the configured terminal
// emulator when the entry asks for one.
func (s *Server) spawn(entry index.Entry) (int, error) {
	var execCmd *exec.Cmd
	if entry.Terminal {
		execCmd = exec.Command(s.cfg.TerminalCommand(), "-e", entry.Exec)
	} else {
		parts := strings.Fields(entry.Exec)
		if len(parts) == 0 {
			return 0, fmt.Errorf("empty exec command")
		}
		execCmd = exec.Command(parts[0], parts[1:]...)
	}

	if err := execCmd.Start(); err != nil {
		return 0, err
	}
	pid := execCmd.Process.Pid

	// Reap the child when it exits.
	go func() { _ = execCmd.Wait() }()

	return pid, nil
}

func (s *Server) writeResponse(conn net.Conn, response string) {
	header := []byte("TXT01")
	if _, err := conn.Write(header); err != nil {
		s.log.Debug("server: writing response header", "error", err)
		return
	}
	if _, err := conn.Write([]byte(response)); err != nil {
		s.log.Debug("server: writing response", "error", err)
	}
}

func (s *Server) writeError(conn net.Conn, cmd, errType, desc string) {
	s.writeResponse(conn, fmt.Sprintf("error-cmd: %s\nerror: %s\ndesc: %s\n\n", cmd, errType, desc))
}
