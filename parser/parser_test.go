package parser

import (
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewParser", func() {
	It("should accept a TXT01 header", func() {
		_, err := NewParser(strings.NewReader("TXT01\nsearch\n"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject an unknown format", func() {
		_, err := NewParser(strings.NewReader("BIN01\nsearch\n"))
		Expect(err).To(HaveOccurred())
	})

	It("should reject a truncated header", func() {
		_, err := NewParser(strings.NewReader("TX"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseCommand", func() {
	var (
		input    string
		parser   *Parser
		cmd      *Command
		parseErr error
	)

	JustBeforeEach(func() {
		var err error
		parser, err = NewParser(strings.NewReader(input))
		Expect(err).NotTo(HaveOccurred())

		cmd, parseErr = parser.ParseCommand()
	})

	Context("when parsing a search command with arguments", func() {
		BeforeEach(func() {
			input = `TXT01
"fire
10
search
`
		})

		It("should parse the command name", func() {
			Expect(parseErr).NotTo(HaveOccurred())
			Expect(cmd.Name).To(Equal("search"))
		})

		It("should parse two arguments", func() {
			Expect(cmd.Args).To(HaveLen(2))
		})

		It("should parse the query as a string", func() {
			Expect(cmd.Args[0].Type).To(Equal(TypeString))
			Expect(cmd.Args[0].Str).To(Equal("fire"))
		})

		It("should parse the limit as an integer", func() {
			Expect(cmd.Args[1].Type).To(Equal(TypeInt))
			Expect(cmd.Args[1].Int).To(Equal(int64(10)))
		})
	})

	Context("when parsing a command without arguments", func() {
		BeforeEach(func() {
			input = "TXT01\nrescan\n"
		})

		It("should parse the command name", func() {
			Expect(parseErr).NotTo(HaveOccurred())
			Expect(cmd.Name).To(Equal("rescan"))
		})

		It("should have no arguments", func() {
			Expect(cmd.Args).To(HaveLen(0))
		})
	})

	Context("when parsing boolean values", func() {
		BeforeEach(func() {
			input = "TXT01\nt\nf\nstats\n"
		})

		It("should parse both literals", func() {
			Expect(parseErr).NotTo(HaveOccurred())
			Expect(cmd.Args).To(HaveLen(2))
			Expect(cmd.Args[0].Type).To(Equal(TypeBool))
			Expect(cmd.Args[0].Bool).To(BeTrue())
			Expect(cmd.Args[1].Bool).To(BeFalse())
		})
	})

	Context("when a string argument contains spaces", func() {
		BeforeEach(func() {
			input = "TXT01\n\"image viewer\nsearch\n"
		})

		It("should keep the spaces", func() {
			Expect(parseErr).NotTo(HaveOccurred())
			Expect(cmd.Args[0].Str).To(Equal("image viewer"))
		})
	})

	Context("when the input contains comments and blank lines", func() {
		BeforeEach(func() {
			input = "TXT01\n# a comment\n\n\"q\nsearch\n"
		})

		It("should skip them", func() {
			Expect(parseErr).NotTo(HaveOccurred())
			Expect(cmd.Name).To(Equal("search"))
			Expect(cmd.Args).To(HaveLen(1))
		})
	})

	Context("when a value is not parseable", func() {
		BeforeEach(func() {
			input = "TXT01\nnot-a-value\nsearch\n"
		})

		It("should return a parse error", func() {
			Expect(parseErr).To(HaveOccurred())
		})
	})

	Context("when the stream ends without a command", func() {
		BeforeEach(func() {
			input = "TXT01\n\"orphan\n"
		})

		It("should return EOF", func() {
			Expect(parseErr).To(Equal(io.EOF))
		})
	})
})

var _ = Describe("ReadAllCommands", func() {
	It("should drain consecutive commands from one stream", func() {
		input := "TXT01\n\"fire\n5\nsearch\n\"abc-123\nrun\nstats\n"
		parser, err := NewParser(strings.NewReader(input))
		Expect(err).NotTo(HaveOccurred())

		cmds, err := parser.ReadAllCommands()
		Expect(err).NotTo(HaveOccurred())
		Expect(cmds).To(HaveLen(3))
		Expect(cmds[0].Name).To(Equal("search"))
		Expect(cmds[1].Name).To(Equal("run"))
		Expect(cmds[1].Args[0].Str).To(Equal("abc-123"))
		Expect(cmds[2].Name).To(Equal("stats"))
	})
})
