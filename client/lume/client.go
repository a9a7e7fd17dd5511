// Package lume is the client library for the lumed daemon socket.
package lume

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

const protoVer = "TXT01" // text format, v01

// Result is one ranked search hit returned by the daemon.
type Result struct {
	ID    string
	Score int
	Usage uint64
	Name  string
	Icon  string
}

// Response is a parsed daemon reply: an attribute block and, for list
// replies, one body line per result.
type Response struct {
	Attrs map[string]string
	Body  []string
}

// Err returns the daemon-reported error, if any.
func (r *Response) Err() error {
	if e, ok := r.Attrs["error"]; ok {
		return fmt.Errorf("%s: %s", e, r.Attrs["desc"])
	}
	return nil
}

// Client handles a connection to the lumed daemon.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
	socket string
}

// NewClient connects to the daemon at socketPath. An empty path resolves
// the default socket location.
func NewClient(socketPath string) (*Client, error) {
	if socketPath == "" {
		var err error
		socketPath, err = defaultSocketPath()
		if err != nil {
			return nil, fmt.Errorf("resolving socket path: %w", err)
		}
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to socket %s: %w", socketPath, err)
	}

	if _, err := conn.Write([]byte(protoVer)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending header: %w", err)
	}

	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		socket: socketPath,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Search asks the daemon for ranked results. limit <= 0 uses the daemon's
// configured list limit.
func (c *Client) Search(query string, limit int) ([]Result, error) {
	args := []string{`"` + query}
	if limit > 0 {
		args = append(args, strconv.Itoa(limit))
	}

	resp, err := c.roundTrip("search", args)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Body))
	for _, line := range resp.Body {
		fields := strings.SplitN(line, "\t", 5)
		if len(fields) < 4 {
			return nil, fmt.Errorf("malformed result line: %q", line)
		}
		score, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("malformed score in line: %q", line)
		}
		usage, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed usage in line: %q", line)
		}
		r := Result{ID: fields[0], Score: score, Usage: usage, Name: fields[3]}
		if len(fields) == 5 {
			r.Icon = fields[4]
		}
		results = append(results, r)
	}
	return results, nil
}

// Run asks the daemon to launch the entry with the given id.
func (c *Client) Run(id string) (*Response, error) {
	resp, err := c.roundTrip("run", []string{`"` + id})
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// Rescan triggers a full scan and reconciliation.
func (c *Client) Rescan() (*Response, error) {
	resp, err := c.roundTrip("rescan", nil)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// Stats fetches daemon counters.
func (c *Client) Stats() (*Response, error) {
	resp, err := c.roundTrip("stats", nil)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// roundTrip sends one command and reads its reply. Arguments are sent
// first, one per line, then the command word.
func (c *Client) roundTrip(cmdName string, args []string) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, arg := range args {
		if _, err := fmt.Fprintf(c.conn, "%s\n", arg); err != nil {
			return nil, fmt.Errorf("sending argument: %w", err)
		}
	}
	if _, err := fmt.Fprintf(c.conn, "%s\n", cmdName); err != nil {
		return nil, fmt.Errorf("sending command: %w", err)
	}

	return c.readResponse()
}

// readResponse parses one reply frame: a five-byte header, attribute lines
// up to a blank line, then count body lines when the attrs announce any.
func (c *Client) readResponse() (*Response, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(c.reader, header); err != nil {
		return nil, fmt.Errorf("reading response header: %w", err)
	}
	if string(header[:3]) != "TXT" {
		return nil, fmt.Errorf("unsupported response format: %s", header[:3])
	}

	resp := &Response{Attrs: make(map[string]string)}
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading response attrs: %w", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		if key, value, ok := strings.Cut(line, ":"); ok {
			resp.Attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	count := 0
	if v, ok := resp.Attrs["count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("malformed count attr: %q", v)
		}
		count = n
	}
	for i := 0; i < count; i++ {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		resp.Body = append(resp.Body, strings.TrimRight(line, "\n"))
	}
	return resp, nil
}
