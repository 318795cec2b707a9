package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/typhoon/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("Step", func() {
		It("prints a success mark and returns nil", func() {
			var buf bytes.Buffer
			err := cliui.Step(&buf, "connecting", func() error { return nil })
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(ContainSubstring("connecting"))
			Expect(buf.String()).To(HaveSuffix("\n"))
		})

		It("returns the function's error", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")
			Expect(cliui.Step(&buf, "loading", func() error { return boom })).To(MatchError(boom))
		})
	})

	DescribeTable("FormatDuration",
		func(d time.Duration, want string) {
			Expect(cliui.FormatDuration(d)).To(Equal(want))
		},
		Entry("milliseconds", 12*time.Millisecond, "12ms"),
		Entry("seconds", 3200*time.Millisecond, "3.2s"),
	)

	It("formats turn stats", func() {
		Expect(cliui.FormatStats(42, 12.5)).To(Equal("42 tokens · 12.5 tok/s"))
	})

	It("leaves markdown untouched for non-terminals", func() {
		var buf bytes.Buffer
		Expect(cliui.IsTerminal(&buf)).To(BeFalse())
		Expect(cliui.TerminalWidth(&buf, 72)).To(Equal(72))
		Expect(cliui.RenderFor(&buf, "# hi")).To(Equal("# hi"))
	})

	It("renders markdown", func() {
		out, err := cliui.RenderMarkdown("**bold**", 40)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("bold"))
	})
})
