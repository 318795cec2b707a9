package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/cliui"
	"github.com/papercomputeco/typhoon/pkg/dotdir"
	"github.com/papercomputeco/typhoon/pkg/transcript"
	"github.com/papercomputeco/typhoon/pkg/utils"
)

var (
	userPrompt = cliui.UserStyle.Render("you> ")
	botPrompt  = cliui.BotStyle.Render("bot> ")
)

const helpText = `  /regen           regenerate the last reply
  /like, /dislike  rate the last reply (/neutral clears the rating)
  /new             start a new conversation
  /history         list your conversations
  /load <id>       continue a conversation
  /models          list available models
  /model <name>    switch model
  /exit            quit (Ctrl+D works too)
`

// session is the interactive loop of "typhoon chat". Streamed deltas reach
// the terminal through a store subscription, so anything that updates the
// transcript is printed the same way.
type session struct {
	asm       *transcript.Assembler
	out       io.Writer
	dirs      *dotdir.Manager
	configDir string
	email     string
	logger    *zap.Logger

	models []chat.ModelDescriptor

	mu      sync.Mutex
	key     uint64
	printed int
}

func newSession(asm *transcript.Assembler, out io.Writer, dirs *dotdir.Manager, configDir, email string, logger *zap.Logger) *session {
	return &session{
		asm:       asm,
		out:       out,
		dirs:      dirs,
		configDir: configDir,
		email:     email,
		logger:    logger,
	}
}

// run reads messages and commands from in until /exit or EOF.
func (s *session) run(ctx context.Context, in io.Reader) error {
	unsubscribe := s.asm.Store().Subscribe(s.onState)
	defer unsubscribe()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		quit, err := s.handle(ctx, input)
		if err != nil {
			fmt.Fprintf(s.out, "  %s %v\n\n", cliui.FailMark, err)
		}
		if quit {
			break
		}
	}

	s.asm.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(s.out)
	return nil
}

// onState prints whatever the open bot turn gained since the last call.
func (s *session) onState(st transcript.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(st.Messages)
	if n == 0 {
		return
	}
	last := st.Messages[n-1]
	if !last.IsBot || last.Status != chat.StatusStreaming {
		return
	}

	// A new turn, or a regenerated one whose content was cleared.
	if last.Key != s.key || len(last.Content) < s.printed {
		s.key = last.Key
		s.printed = 0
	}
	if len(last.Content) > s.printed {
		fmt.Fprint(s.out, last.Content[s.printed:])
		s.printed = len(last.Content)
	}
}

func (s *session) handle(ctx context.Context, input string) (bool, error) {
	if !strings.HasPrefix(input, "/") {
		return false, s.send(ctx, input)
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return true, nil
	case "/regen":
		return false, s.regenerate(ctx)
	case "/like":
		return false, s.rate(ctx, chat.PreferenceLike)
	case "/dislike":
		return false, s.rate(ctx, chat.PreferenceDislike)
	case "/neutral":
		return false, s.rate(ctx, chat.PreferenceNeutral)
	case "/new":
		return false, s.newConversation()
	case "/history":
		return false, s.history(ctx)
	case "/load":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return false, fmt.Errorf("usage: /load <session id>")
		}
		return false, s.load(ctx, id)
	case "/models":
		s.listModels()
		return false, nil
	case "/model":
		return false, s.selectModel(arg, "")
	case "/help":
		fmt.Fprint(s.out, helpText)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q (try /help)", cmd)
	}
}

func (s *session) send(ctx context.Context, input string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(s.out, botPrompt)
	res, err := s.asm.Send(ctx, input)
	return s.finish(res, err)
}

func (s *session) regenerate(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(s.out, botPrompt)
	res, err := s.asm.Regenerate(ctx)
	return s.finish(res, err)
}

func (s *session) finish(res transcript.Result, err error) error {
	fmt.Fprintln(s.out)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "  %s\n", cliui.DimStyle.Render(cliui.FormatStats(res.Message.TokenCount, res.Message.TokenRate)))
	if res.Skipped > 0 {
		fmt.Fprintf(s.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("skipped %d malformed events", res.Skipped)))
	}
	if res.PersistErr != nil {
		fmt.Fprintf(s.out, "  %s %s\n\n", cliui.FailMark, cliui.DimStyle.Render("not saved: "+res.PersistErr.Error()))
		return nil
	}

	s.saveSession()
	fmt.Fprintln(s.out)
	return nil
}

// rate sets the preference of the last bot turn.
func (s *session) rate(ctx context.Context, pref chat.Preference) error {
	msgs := s.asm.Store().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IsBot {
			continue
		}
		err := s.asm.SetPreference(ctx, msgs[i].Key, pref)
		if errors.Is(err, transcript.ErrNotPersisted) {
			return errors.New("the last reply has not been saved, so it cannot be rated")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "  %s %s\n\n", cliui.SuccessMark, cliui.DimStyle.Render("rated "+string(pref)))
		return nil
	}
	return errors.New("there is no reply to rate yet")
}

func (s *session) newConversation() error {
	if err := s.asm.NewSession(); err != nil {
		return err
	}
	if s.dirs != nil {
		if err := s.dirs.ClearSession(s.configDir); err != nil {
			s.logger.Warn("clearing saved session failed", zap.Error(err))
		}
	}
	fmt.Fprintf(s.out, "  %s New conversation\n\n", cliui.DimStyle.Render("●"))
	return nil
}

func (s *session) history(ctx context.Context) error {
	sessions, err := s.asm.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintf(s.out, "  %s\n\n", cliui.DimStyle.Render("No conversations yet."))
		return nil
	}

	current := s.asm.Store().SessionID()
	for _, ss := range sessions {
		marker := " "
		if current != nil && *current == ss.ID {
			marker = "*"
		}
		fmt.Fprintf(s.out, "  %s %s  %s  %s\n",
			marker,
			cliui.KeyStyle.Render(fmt.Sprintf("%6d", ss.ID)),
			cliui.ValueStyle.Render(utils.Truncate(utils.FirstLine(ss.Title), 60)),
			cliui.DimStyle.Render(ss.UpdatedAt),
		)
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *session) load(ctx context.Context, id int64) error {
	if err := s.asm.LoadSession(ctx, id); err != nil {
		return err
	}
	s.printTranscript()
	s.saveSession()
	return nil
}

func (s *session) printTranscript() {
	fmt.Fprintln(s.out)
	for _, m := range s.asm.Store().Messages() {
		if !m.IsBot {
			fmt.Fprintf(s.out, "%s%s\n", userPrompt, m.Content)
			continue
		}
		fmt.Fprintf(s.out, "%s%s\n", botPrompt, strings.TrimRight(cliui.RenderFor(s.out, m.Content), "\n"))
		fmt.Fprintf(s.out, "  %s\n", cliui.DimStyle.Render(cliui.FormatStats(m.TokenCount, m.TokenRate)))
	}
	fmt.Fprintln(s.out)
}

func (s *session) listModels() {
	if len(s.models) == 0 {
		fmt.Fprintf(s.out, "  %s\n\n", cliui.DimStyle.Render("No models loaded."))
		return
	}
	current := s.asm.Store().ModelName().Shortname
	for _, m := range s.models {
		marker := " "
		if m.Shortname == current {
			marker = "*"
		}
		fmt.Fprintf(s.out, "  %s %s  %s\n", marker, cliui.KeyStyle.Render(m.Shortname), cliui.DimStyle.Render(m.Fullname))
	}
	fmt.Fprintln(s.out)
}

// selectModel switches to the named model with its default parameters. When
// the catalogue is unavailable the name is used as given.
func (s *session) selectModel(shortname, fullname string) error {
	if shortname == "" {
		return errors.New("usage: /model <name>")
	}

	store := s.asm.Store()
	for _, m := range s.models {
		if m.Shortname == shortname {
			store.SetModelName(m.Name())
			store.SetModelParams(m.Params.Defaults())
			return nil
		}
	}
	if len(s.models) > 0 {
		return fmt.Errorf("unknown model %q (see /models)", shortname)
	}

	if fullname == "" {
		fullname = shortname
	}
	store.SetModelName(chat.ModelName{Shortname: shortname, Fullname: fullname})
	return nil
}

// saveSession remembers the selected session for "typhoon chat --resume".
func (s *session) saveSession() {
	if s.dirs == nil {
		return
	}
	id := s.asm.Store().SessionID()
	if id == nil {
		return
	}
	err := s.dirs.SaveSession(&dotdir.SessionState{
		SessionID: *id,
		Email:     s.email,
		Model:     s.asm.Store().ModelName().Shortname,
	}, s.configDir)
	if err != nil {
		s.logger.Warn("saving session failed", zap.Error(err))
	}
}
