package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nettle-sh/lume/client/lume"
	"github.com/nettle-sh/lume/internal/config"
	"github.com/nettle-sh/lume/internal/engine"
	"github.com/nettle-sh/lume/internal/ranker"
	"github.com/nettle-sh/lume/parser"
)

func appFile(name, exec string) string {
	return fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%s\n", name, exec)
}

var _ = Describe("Server", func() {
	var (
		tmpDir  string
		appsDir string
		cfg     config.Config
		eng     *engine.Engine
		srv     *Server
	)

	writeApp := func(name, exec string) {
		path := filepath.Join(appsDir, name+".desktop")
		Expect(os.WriteFile(path, []byte(appFile(name, exec)), 0o644)).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "lume-server-test-*")
		Expect(err).NotTo(HaveOccurred())
		appsDir = filepath.Join(tmpDir, "applications")
		Expect(os.MkdirAll(appsDir, 0o755)).To(Succeed())

		cfg = config.Config{
			AppPaths:   []string{appsDir},
			CachePath:  filepath.Join(tmpDir, "apps.cache"),
			SocketPath: filepath.Join(tmpDir, "lumed.sock"),
			Workers:    2,
			Debounce:   50 * time.Millisecond,
			ListLimit:  128,
			Tuning:     ranker.DefaultTuning(),
		}
	})

	AfterEach(func() {
		if srv != nil {
			srv.Stop()
			srv = nil
		}
		if eng != nil {
			eng.Shutdown()
			eng = nil
		}
		os.RemoveAll(tmpDir)
	})

	startAll := func() {
		var err error
		eng, err = engine.New(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		srv, err = NewServer(eng, cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		go srv.Start(context.Background())
	}

	Describe("socket round trips", func() {
		var client *lume.Client

		BeforeEach(func() {
			writeApp("Firefox", "true")
			writeApp("Files", "true")
			startAll()

			var err error
			client, err = lume.NewClient(cfg.SocketPath)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			client.Close()
		})

		It("should answer search with ranked results", func() {
			results, err := client.Search("fi", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Score).To(Equal(results[1].Score))
			Expect(results[0].ID).NotTo(BeEmpty())
		})

		It("should answer an empty query with the full usage-ordered list", func() {
			results, err := client.Search("", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("should respect the search limit", func() {
			results, err := client.Search("", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("should launch an application and bump its usage", func() {
			results, err := client.Search("firefox", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))

			resp, err := client.Run(results[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Attrs["status"]).To(Equal("0"))
			Expect(resp.Attrs["pid"]).NotTo(BeEmpty())

			results, err = client.Search("firefox", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Usage).To(Equal(uint64(1)))
		})

		It("should report not found for an unknown id", func() {
			_, err := client.Run("no-such-id")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not found"))
		})

		It("should answer rescan with the entry count", func() {
			resp, err := client.Rescan()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Attrs["entries"]).To(Equal("2"))
		})

		It("should answer stats", func() {
			resp, err := client.Stats()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Attrs["entries"]).To(Equal("2"))
			Expect(resp.Attrs).To(HaveKey("watch-events"))
		})

		It("should serve multiple commands on one connection", func() {
			for i := 0; i < 3; i++ {
				_, err := client.Stats()
				Expect(err).NotTo(HaveOccurred())
			}
		})
	})

	Describe("socket lifecycle", func() {
		It("should replace a stale socket file", func() {
			Expect(os.WriteFile(cfg.SocketPath, []byte{}, 0o644)).To(Succeed())
			startAll()

			client, err := lume.NewClient(cfg.SocketPath)
			Expect(err).NotTo(HaveOccurred())
			defer client.Close()

			_, err = client.Stats()
			Expect(err).NotTo(HaveOccurred())
		})

		It("should stop accepting connections after Stop", func() {
			startAll()
			Expect(srv.Stop()).To(Succeed())
			srv = nil

			Eventually(func() error {
				conn, err := net.Dial("unix", cfg.SocketPath)
				if conn != nil {
					conn.Close()
				}
				return err
			}, "2s", "50ms").Should(HaveOccurred())
		})
	})

	Describe("executeCommand", func() {
		var responseBuf bytes.Buffer

		BeforeEach(func() {
			writeApp("Firefox", "true")
			var err error
			eng, err = engine.New(cfg, nil)
			Expect(err).NotTo(HaveOccurred())
			srv = &Server{eng: eng, cfg: cfg, log: discardLogger()}
			responseBuf.Reset()
		})

		AfterEach(func() {
			// No listener behind this server; skip the outer Stop.
			srv = nil
		})

		It("should reject an unknown command", func() {
			cmd := &parser.Command{Name: "destroy"}
			srv.executeCommand(&mockConn{writeBuf: &responseBuf}, cmd)

			Expect(responseBuf.String()).To(ContainSubstring("error-cmd: destroy"))
			Expect(responseBuf.String()).To(ContainSubstring("unknown command"))
		})

		It("should reject run without an id", func() {
			cmd := &parser.Command{Name: "run"}
			srv.executeCommand(&mockConn{writeBuf: &responseBuf}, cmd)

			Expect(responseBuf.String()).To(ContainSubstring("error-cmd: run"))
			Expect(responseBuf.String()).To(ContainSubstring("missing id"))
		})

		It("should answer search with an attrs block and body", func() {
			cmd := &parser.Command{Name: "search", Args: []parser.Value{
				{Type: parser.TypeString, Str: "fire"},
			}}
			srv.executeCommand(&mockConn{writeBuf: &responseBuf}, cmd)

			response := responseBuf.String()
			Expect(response).To(ContainSubstring("cmd: search"))
			Expect(response).To(ContainSubstring("status: 0"))
			Expect(response).To(ContainSubstring("count: 1"))
			Expect(response).To(ContainSubstring("Firefox"))
		})
	})
})

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockConn implements net.Conn over buffers for direct handler tests.
type mockConn struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	if m.readBuf == nil {
		return 0, nil
	}
	return m.readBuf.Read(b)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	if m.writeBuf == nil {
		return len(b), nil
	}
	return m.writeBuf.Write(b)
}

func (m *mockConn) Close() error                       { return nil }
func (m *mockConn) LocalAddr() net.Addr                { return &net.UnixAddr{Name: "mock", Net: "unix"} }
func (m *mockConn) RemoteAddr() net.Addr               { return &net.UnixAddr{Name: "mock", Net: "unix"} }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }
