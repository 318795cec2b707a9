// Package initcmder provides the init command for initializing a local
// .typhoon directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/typhoon/pkg/cliui"
	"github.com/papercomputeco/typhoon/pkg/config"
)

const (
	dirName = ".typhoon"

	remoteTimeout = 10 * time.Second

	// maxRemoteConfig caps how much of a remote preset is read.
	maxRemoteConfig = 1 << 20
)

const initLongDesc string = `Initialize a new .typhoon/ directory in the current working directory.

Creates a local .typhoon/ directory that takes precedence over the default
~/.typhoon/ directory for configuration, the resumable chat session and
other typhoon state. A config.toml with default values is written unless
one already exists.

Use --preset to start from a named preset or a remote config.toml:
  local    relay to a backend on localhost and keep turns in SQLite
  mock     serve canned mock streams, no backend required
  <url>    fetch config.toml over HTTP(S)

A preset always overwrites an existing config.toml.

Examples:
  typhoon init
  typhoon init --preset mock
  typhoon init --preset https://example.com/typhoon/config.toml`

const initShortDesc string = "Initialize a local .typhoon/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Config preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *initCommander) run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, dirName)

	info, statErr := os.Stat(dir)
	existed := statErr == nil && info.IsDir()
	if !existed {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .typhoon directory: %w", err)
		}
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	switch {
	case cfg != nil:
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s Wrote %s preset to %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(c.preset), cfger.GetTarget())
	case !fileExists(cfger.GetTarget()):
		if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
			return err
		}
	}

	if existed {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
		return nil
	}
	fmt.Fprintf(w, "Initialized .typhoon directory: %s\n", dir)
	return nil
}

// resolve returns the preset config, or nil when no preset was requested.
func (c *initCommander) resolve(ctx context.Context) (*config.Config, error) {
	switch {
	case c.preset == "":
		return nil, nil
	case strings.HasPrefix(c.preset, "http://"), strings.HasPrefix(c.preset, "https://"):
		return fetchRemote(ctx, c.preset)
	default:
		return config.PresetConfig(c.preset)
	}
}

func fetchRemote(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
