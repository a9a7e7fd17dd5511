package lume

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeDaemon serves canned attrs-block replies over a unix socket. Each
// accepted connection validates the header, then answers every received
// command with the next scripted reply.
type fakeDaemon struct {
	listener net.Listener
	replies  []string
	mu       sync.Mutex
	requests []string
	wg       sync.WaitGroup
}

func newFakeDaemon(socketPath string, replies ...string) *fakeDaemon {
	l, err := net.Listen("unix", socketPath)
	Expect(err).NotTo(HaveOccurred())

	d := &fakeDaemon{listener: l, replies: replies}
	d.wg.Add(1)
	go d.serve()
	return d
}

func (d *fakeDaemon) serve() {
	defer d.wg.Done()

	conn, err := d.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	header := make([]byte, 5)
	if _, err := io.ReadFull(reader, header); err != nil {
		return
	}

	for _, reply := range d.replies {
		// Collect argument lines until the command word arrives.
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			d.mu.Lock()
			d.requests = append(d.requests, line)
			d.mu.Unlock()
			if !strings.HasPrefix(line, `"`) && !isNumeric(line) {
				break
			}
		}
		fmt.Fprintf(conn, "TXT01%s", reply)
	}
}

func (d *fakeDaemon) close() {
	d.listener.Close()
	d.wg.Wait()
}

func (d *fakeDaemon) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var _ = Describe("Client", func() {
	var (
		tmpDir     string
		socketPath string
		daemon     *fakeDaemon
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "lume-client-test-*")
		Expect(err).NotTo(HaveOccurred())
		socketPath = filepath.Join(tmpDir, "lumed.sock")
	})

	AfterEach(func() {
		if daemon != nil {
			daemon.close()
			daemon = nil
		}
		os.RemoveAll(tmpDir)
	})

	Describe("NewClient", func() {
		It("should fail when the daemon is not running", func() {
			_, err := NewClient(socketPath)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Search", func() {
		It("should parse ranked result lines", func() {
			daemon = newFakeDaemon(socketPath,
				"cmd: search\nstatus: 0\ncount: 2\n\nid-1\t56\t9\tFirefox\tfirefox\nid-2\t56\t2\tFiles\t\n")

			client, err := NewClient(socketPath)
			Expect(err).NotTo(HaveOccurred())
			defer client.Close()

			results, err := client.Search("fi", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0]).To(Equal(Result{ID: "id-1", Score: 56, Usage: 9, Name: "Firefox", Icon: "firefox"}))
			Expect(results[1].Name).To(Equal("Files"))
			Expect(results[1].Icon).To(Equal(""))
		})

		It("should send the query string and limit before the command word", func() {
			daemon = newFakeDaemon(socketPath, "cmd: search\nstatus: 0\ncount: 0\n\n")

			client, err := NewClient(socketPath)
			Expect(err).NotTo(HaveOccurred())
			defer client.Close()

			_, err = client.Search("fire", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(daemon.received()).To(Equal([]string{`"fire`, "5", "search"}))
		})

		It("should surface a daemon error", func() {
			daemon = newFakeDaemon(socketPath,
				"error-cmd: search\nerror: parse error\ndesc: bad value\n\n")

			client, err := NewClient(socketPath)
			Expect(err).NotTo(HaveOccurred())
			defer client.Close()

			_, err = client.Search("x", 0)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parse error"))
		})
	})

	Describe("Run", func() {
		It("should return the run attrs", func() {
			daemon = newFakeDaemon(socketPath, "cmd: run\nstatus: 0\nid: id-1\npid: 4242\n\n")

			client, err := NewClient(socketPath)
			Expect(err).NotTo(HaveOccurred())
			defer client.Close()

			resp, err := client.Run("id-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Attrs["pid"]).To(Equal("4242"))
		})
	})

	Describe("Stats", func() {
		It("should return the counters", func() {
			daemon = newFakeDaemon(socketPath,
				"cmd: stats\nstatus: 0\nentries: 12\nwatch-events: 3\nwatch-batches: 1\n\n")

			client, err := NewClient(socketPath)
			Expect(err).NotTo(HaveOccurred())
			defer client.Close()

			resp, err := client.Stats()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Attrs["entries"]).To(Equal("12"))
		})
	})
})
