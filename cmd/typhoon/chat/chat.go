// Package chatcmder provides the chat command for interactive chat through a
// typhoon relay.
package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/backend"
	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/cliui"
	"github.com/papercomputeco/typhoon/pkg/config"
	"github.com/papercomputeco/typhoon/pkg/dotdir"
	"github.com/papercomputeco/typhoon/pkg/logger"
	"github.com/papercomputeco/typhoon/pkg/streamclient"
	"github.com/papercomputeco/typhoon/pkg/transcript"
	"github.com/papercomputeco/typhoon/relay/auth"
)

// tokenTTL is the lifetime of the bearer token minted for one chat run.
const tokenTTL = 12 * time.Hour

type chatCommander struct {
	relayTarget   string
	backendTarget string
	email         string
	model         string
	modelFullname string
	jwtSecret     string
	streamTimeout time.Duration
	resume        bool

	configDir string
	debug     bool
	logFile   string
	logger    *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session through a typhoon relay.

Replies stream in as they are generated. Completed turns are saved to the
backend and filed under a session; the session you were last in is remembered
in the .typhoon/ directory and can be picked up again with --resume.

Type /help inside the session for the available commands.

Examples:
  typhoon chat --email ada@example.com
  typhoon chat --model llama --relay-target http://localhost:8080
  typhoon chat --resume`

const chatShortDesc string = "Interactive chat through the typhoon relay"

var chatFlags = []string{
	config.FlagRelayTarget,
	config.FlagBackendTarget,
	config.FlagEmail,
	config.FlagModel,
	config.FlagJWTSecret,
	config.FlagStreamTimeout,
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)
			cmder.relayTarget = v.GetString("client.relay_target")
			cmder.backendTarget = v.GetString("client.backend_target")
			cmder.email = v.GetString("client.email")
			cmder.model = v.GetString("client.model")
			cmder.modelFullname = v.GetString("client.model_fullname")
			cmder.jwtSecret = v.GetString("auth.jwt_secret")
			cmder.streamTimeout = v.GetDuration("relay.stream_timeout")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.logFile, _ = cmd.Flags().GetString("log-file")

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, os.Stdin, os.Stdout)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagRelayTarget, &cmder.relayTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackendTarget, &cmder.backendTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmail, &cmder.email)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagJWTSecret, &cmder.jwtSecret)
	config.AddDurationFlag(cmd, config.Flags, config.FlagStreamTimeout, &cmder.streamTimeout)
	cmd.Flags().BoolVar(&cmder.resume, "resume", false, "Continue the conversation you were last in")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if c.email == "" {
		return errors.New(`an email is required: pass --email or run "typhoon config set client.email <you>"`)
	}

	var closeLog func() error
	var err error
	c.logger, closeLog, err = logger.NewWithFile(c.debug, os.Stderr, c.logFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.logger.Sync()
		_ = closeLog()
	}()

	asm, persister, err := c.newAssembler()
	if err != nil {
		return err
	}

	if _, err := persister.RegisterUser(ctx, c.email); err != nil {
		c.logger.Debug("registering user failed", zap.String("email", c.email), zap.Error(err))
	}

	sess := newSession(asm, out, dotdir.NewManager(), c.configDir, c.email, c.logger)

	fmt.Fprintln(out)
	err = cliui.Step(out, "Loading models", func() error {
		var err error
		sess.models, err = asm.LoadModels(ctx)
		return err
	})
	if err != nil {
		c.logger.Debug("model catalogue unavailable", zap.Error(err))
	}
	if c.model != "" {
		if err := sess.selectModel(c.model, c.modelFullname); err != nil {
			return err
		}
	}

	if c.resume {
		if err := c.resumeSession(ctx, sess); err != nil {
			fmt.Fprintf(out, "  %s %v\n", cliui.FailMark, err)
		}
	} else {
		fmt.Fprintf(out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Fprintf(out, "  %s %s\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.ValueStyle.Render(asm.Store().ModelName().Fullname),
	)
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /help for commands, /exit or Ctrl+D to quit."))

	return sess.run(ctx, in)
}

func (c *chatCommander) newAssembler() (*transcript.Assembler, *backend.Client, error) {
	opts := []streamclient.Option{streamclient.WithLogger(c.logger)}
	if c.jwtSecret != "" {
		token, err := auth.Sign(c.jwtSecret, c.email, tokenTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("signing token: %w", err)
		}
		opts = append(opts, streamclient.WithHeader("Authorization", "Bearer "+token))
	}

	persister := backend.New(c.backendTarget, backend.WithLogger(c.logger))
	asm := transcript.NewAssembler(&transcript.Config{
		Opener:        transcript.NewRelayOpener(c.relayTarget, streamclient.New(opts...)),
		Persister:     persister,
		Store:         transcript.NewStore(transcript.State{Params: chat.DefaultModelParams()}),
		Email:         c.email,
		StreamTimeout: c.streamTimeout,
		Logger:        c.logger,
	})
	return asm, persister, nil
}

func (c *chatCommander) resumeSession(ctx context.Context, sess *session) error {
	state, err := dotdir.NewManager().LoadSessionState(c.configDir)
	if err != nil {
		return err
	}
	if state == nil || state.Email != c.email {
		fmt.Fprintf(sess.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintf(sess.out, "  %s Resuming conversation %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(fmt.Sprintf("%d", state.SessionID)),
	)
	return sess.load(ctx, state.SessionID)
}
