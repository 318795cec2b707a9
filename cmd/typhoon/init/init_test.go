package initcmder_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/typhoon/cmd/typhoon/init"
	"github.com/papercomputeco/typhoon/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(io.Discard)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "typhoon-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("creates a .typhoon directory with a default config", func() {
		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".typhoon"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Relay.Listen).To(Equal(":8080"))
		Expect(cfg.Relay.Backend).To(Equal("http://localhost:8000"))
		Expect(cfg.API.Listen).To(Equal(":8081"))
	})

	It("keeps existing contents when already initialized", func() {
		dir := filepath.Join(tmpDir, ".typhoon")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[client]\nemail = \"ada@example.com\"\n"), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "session.json"), []byte(`{"session_id":7}`), 0o600)).To(Succeed())

		Expect(execute()).To(Succeed())

		Expect(loadConfig(tmpDir).Client.Email).To(Equal("ada@example.com"))
		data, err := os.ReadFile(filepath.Join(dir, "session.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"session_id":7}`))
	})

	Describe("--preset with named presets", func() {
		It("writes the mock preset", func() {
			Expect(execute("--preset", "mock")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Relay.Mock).To(BeTrue())
			Expect(cfg.Client.Email).To(Equal("mock@localhost"))
		})

		It("writes the local preset", func() {
			Expect(execute("--preset", "LOCAL")).To(Succeed())
			Expect(loadConfig(tmpDir).Storage.SQLitePath).To(Equal("typhoon.sqlite"))
		})

		It("overwrites an existing config on re-init", func() {
			Expect(execute("--preset", "mock")).To(Succeed())
			Expect(execute("--preset", "local")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Relay.Mock).To(BeFalse())
			Expect(cfg.Storage.SQLitePath).To(Equal("typhoon.sqlite"))
		})

		It("rejects unknown preset names", func() {
			Expect(execute("--preset", "openai")).To(MatchError(ContainSubstring("unknown preset")))
		})
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes remote config.toml", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "version = 0\n\n[relay]\nbackend = \"http://llm.internal:8000\"\nlisten = \":9090\"\n")
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Relay.Backend).To(Equal("http://llm.internal:8000"))
			Expect(cfg.Relay.Listen).To(Equal(":9090"))
		})

		It("returns error for non-200 HTTP response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("HTTP 404")))
		})

		It("returns error for invalid TOML", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("parsing")))
		})

		It("returns error for unreachable URL", func() {
			Expect(execute("--preset", "http://127.0.0.1:1")).To(MatchError(ContainSubstring("fetching remote config")))
		})
	})
})

// loadConfig reads and parses config.toml from the .typhoon directory within
// the given base directory.
func loadConfig(baseDir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(baseDir, ".typhoon", "config.toml"))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	ExpectWithOffset(1, toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}
