package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/sse"
)

const DefaultStreamTimeout = 5 * time.Minute

var (
	// ErrStreamInProgress is returned when an operation that needs an idle
	// assembler is started while a stream is open.
	ErrStreamInProgress = errors.New("a chat stream is already in progress")

	// ErrIncomplete is returned when a stream ended without the sentinel.
	ErrIncomplete = errors.New("chat stream ended before completion")

	ErrNothingToRegenerate = errors.New("transcript does not end with a user and bot turn")
	ErrNotPersisted        = errors.New("message has no server id yet")
	ErrUnknownMessage      = errors.New("message not in transcript")
	ErrNoPersister         = errors.New("no persister configured")
)

// Phase is the streaming state of an Assembler.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStreaming
)

func (p Phase) String() string {
	if p == PhaseStreaming {
		return "streaming"
	}
	return "idle"
}

// EventStream is an open chat stream.
type EventStream interface {
	Next() (*sse.Event, error)
	Close() error
}

// Opener opens a chat stream for a request.
type Opener interface {
	OpenChat(ctx context.Context, req *chat.ChatRequest) (EventStream, error)
}

// Persister is the persistence side channel.
type Persister interface {
	RegisterMessage(ctx context.Context, req chat.RegisterMessageRequest) (chat.RegisterMessageResponse, error)
	SetPreference(ctx context.Context, messageID int64, pref chat.Preference) error
	SessionMessages(ctx context.Context, sessionID int64) ([]chat.PersistedMessage, error)
	UserSessions(ctx context.Context, email string) ([]chat.SessionSummary, error)
	ModelParams(ctx context.Context) ([]chat.ModelDescriptor, error)
}

// Config wires an Assembler.
type Config struct {
	Opener    Opener
	Persister Persister
	Store     *Store

	// Email identifies the user when registering messages.
	Email string

	// StreamTimeout bounds a single stream. Zero uses DefaultStreamTimeout,
	// a negative value disables the bound.
	StreamTimeout time.Duration

	Logger *zap.Logger
}

// Result describes a finished stream.
type Result struct {
	// Message is the final state of the streamed bot turn.
	Message chat.Message

	// Events counts applied payloads; Skipped counts malformed ones.
	Events  int
	Skipped int

	// PersistErr is set when the stream completed but recording the turns
	// failed. The turns stay in the transcript without message ids.
	PersistErr error
}

// Assembler turns chat streams into transcript updates. At most one stream
// is open at a time.
type Assembler struct {
	opener    Opener
	persister Persister
	store     *Store
	email     string
	timeout   time.Duration
	logger    *zap.Logger

	phase   atomic.Int32
	pending sync.WaitGroup

	// prefMu guards the latest unsent preference per message id and the set
	// of message ids with a sender running. One sender per message id keeps
	// the backend's final rating equal to the store's.
	prefMu      sync.Mutex
	prefLatest  map[int64]chat.Preference
	prefSending map[int64]bool
}

// NewAssembler creates an Assembler.
func NewAssembler(c *Config) *Assembler {
	timeout := c.StreamTimeout
	if timeout == 0 {
		timeout = DefaultStreamTimeout
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := c.Store
	if store == nil {
		store = NewStore(State{Params: chat.DefaultModelParams()})
	}
	return &Assembler{
		opener:    c.Opener,
		persister: c.Persister,
		store:     store,
		email:     c.Email,
		timeout:   timeout,
		logger:    logger,

		prefLatest:  make(map[int64]chat.Preference),
		prefSending: make(map[int64]bool),
	}
}

func (a *Assembler) Store() *Store {
	return a.store
}

func (a *Assembler) Phase() Phase {
	return Phase(a.phase.Load())
}

func (a *Assembler) acquire() error {
	if !a.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseStreaming)) {
		return ErrStreamInProgress
	}
	return nil
}

func (a *Assembler) release() {
	a.phase.Store(int32(PhaseIdle))
}

// Send appends input as a user turn, streams the bot reply into a new open
// turn and records both turns once the stream completes.
func (a *Assembler) Send(ctx context.Context, input string) (Result, error) {
	if strings.TrimSpace(input) == "" {
		return Result{}, chat.ErrEmptyContent
	}
	if err := a.acquire(); err != nil {
		return Result{}, err
	}
	defer a.release()

	prior := a.store.Messages()
	userKey := a.store.Append(chat.NewUserMessage(input))
	open := &Handle{store: a.store, key: a.store.Append(chat.NewBotMessage())}

	userMsg, _ := a.store.Message(userKey)
	req := a.request(append(prior, userMsg))

	res, err := a.stream(ctx, req, open)
	if err != nil {
		return res, err
	}

	res.PersistErr = a.persist(ctx, userKey, open.key)
	res.Message, _ = open.Get()
	return res, nil
}

// Regenerate streams a new reply to the last user turn and overwrites the
// last bot turn in place.
func (a *Assembler) Regenerate(ctx context.Context) (Result, error) {
	if err := a.acquire(); err != nil {
		return Result{}, err
	}
	defer a.release()

	msgs := a.store.Messages()
	n := len(msgs)
	if n < 2 || !msgs[n-1].IsBot || msgs[n-2].IsBot {
		return Result{}, ErrNothingToRegenerate
	}
	userKey := msgs[n-2].Key
	open := &Handle{store: a.store, key: msgs[n-1].Key}

	open.Update(func(m *chat.Message) {
		m.Content = ""
		m.TokenCount = 0
		m.TokenRate = 0
		m.Status = chat.StatusStreaming
	})

	res, err := a.stream(ctx, a.request(msgs[:n-1]), open)
	if err != nil {
		return res, err
	}

	res.PersistErr = a.persist(ctx, userKey, open.key)
	res.Message, _ = open.Get()
	return res, nil
}

func (a *Assembler) request(msgs []chat.Message) *chat.ChatRequest {
	st := a.store.Snapshot()
	return &chat.ChatRequest{
		Messages: chat.TurnsFrom(msgs),
		Model:    st.Model.Shortname,
		Params:   st.Params.AsMap(),
	}
}

// stream folds one chat stream into the open message. It returns nil only
// when the sentinel was received.
func (a *Assembler) stream(ctx context.Context, req *chat.ChatRequest, open *Handle) (Result, error) {
	var cancel context.CancelFunc
	if a.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	res := Result{}
	markIncomplete := func() {
		open.Update(func(m *chat.Message) {
			m.Status = chat.StatusIncomplete
		})
		res.Message, _ = open.Get()
	}

	es, err := a.opener.OpenChat(ctx, req)
	if err != nil {
		markIncomplete()
		a.logger.Error("opening chat stream failed", zap.Error(err))
		return res, fmt.Errorf("opening chat stream: %w", err)
	}

	stream := &onceCloser{EventStream: es}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})
	defer stop()

	acc := &chat.Accumulator{}
	for {
		ev, err := stream.Next()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				err = fmt.Errorf("chat stream aborted: %w", context.Cause(ctx))
			case errors.Is(err, io.EOF):
				err = ErrIncomplete
			default:
				err = fmt.Errorf("reading chat stream: %w", err)
			}
			markIncomplete()
			a.logger.Warn("chat stream stopped before completion",
				zap.Int("events", res.Events),
				zap.Error(err),
			)
			return res, err
		}

		if chat.IsDone(ev.Data) {
			open.Update(func(m *chat.Message) {
				m.Status = chat.StatusComplete
			})
			res.Message, _ = open.Get()
			a.logger.Debug("chat stream complete",
				zap.Int("events", res.Events),
				zap.Int("skipped", res.Skipped),
			)
			return res, nil
		}

		p, err := chat.DecodePayload(ev.Data)
		if err != nil {
			res.Skipped++
			a.logger.Warn("skipping malformed stream event", zap.Error(err))
			continue
		}

		acc.Apply(p)
		res.Events++
		open.Update(acc.ApplyTo)
	}
}

// persist records the user turn (when not yet recorded) and the bot turn,
// then selects the session they were filed under.
func (a *Assembler) persist(ctx context.Context, userKey, botKey uint64) error {
	if a.persister == nil {
		return nil
	}

	model := a.store.ModelName()
	sessionID := a.store.SessionID()

	for _, key := range []uint64{userKey, botKey} {
		msg, ok := a.store.Message(key)
		if !ok {
			return ErrUnknownMessage
		}
		if !msg.IsBot && msg.Persisted() {
			continue
		}

		resp, err := a.persister.RegisterMessage(ctx, chat.RegisterMessageRequest{
			Email:      a.email,
			Message:    msg.Content,
			Tokens:     msg.TokenCount,
			TokenSpeed: msg.TokenRate,
			Role:       msg.Role(),
			SessionID:  sessionID,
			MessageID:  msg.MessageID,
			Model:      model,
		})
		if err != nil {
			a.logger.Error("registering message failed",
				zap.String("role", string(msg.Role())),
				zap.Error(err),
			)
			return fmt.Errorf("registering %s message: %w", msg.Role(), err)
		}

		id := resp.MessageID
		a.store.UpdateMessage(key, func(m *chat.Message) {
			m.MessageID = &id
		})
		session := resp.SessionID
		sessionID = &session
	}

	a.store.SelectSession(sessionID)
	return nil
}

// SetPreference rates a persisted message. The store is updated immediately;
// the backend call runs in the background. Setting the current preference
// again does nothing.
func (a *Assembler) SetPreference(ctx context.Context, key uint64, pref chat.Preference) error {
	msg, ok := a.store.Message(key)
	if !ok {
		return ErrUnknownMessage
	}
	if !msg.Persisted() {
		return ErrNotPersisted
	}
	if msg.Preference == pref {
		return nil
	}

	a.store.UpdateMessage(key, func(m *chat.Message) {
		m.Preference = pref
	})

	if a.persister == nil {
		return nil
	}
	id := *msg.MessageID
	a.prefMu.Lock()
	defer a.prefMu.Unlock()
	a.prefLatest[id] = pref
	if !a.prefSending[id] {
		a.prefSending[id] = true
		a.pending.Add(1)
		go a.sendPreferences(context.WithoutCancel(ctx), id)
	}
	return nil
}

// sendPreferences sends the latest preference of one message until none is
// left, so calls for the same message reach the backend in order.
func (a *Assembler) sendPreferences(ctx context.Context, id int64) {
	defer a.pending.Done()
	for {
		a.prefMu.Lock()
		pref, ok := a.prefLatest[id]
		if !ok {
			delete(a.prefSending, id)
			a.prefMu.Unlock()
			return
		}
		delete(a.prefLatest, id)
		a.prefMu.Unlock()

		if err := a.persister.SetPreference(ctx, id, pref); err != nil {
			a.logger.Error("updating preference failed",
				zap.Int64("message_id", id),
				zap.String("preference", string(pref)),
				zap.Error(err),
			)
		}
	}
}

// Wait blocks until background preference updates have finished.
func (a *Assembler) Wait() {
	a.pending.Wait()
}

// NewSession discards the transcript.
func (a *Assembler) NewSession() error {
	if err := a.acquire(); err != nil {
		return err
	}
	defer a.release()
	a.store.NewSession()
	return nil
}

// LoadSession replaces the transcript with a persisted session.
func (a *Assembler) LoadSession(ctx context.Context, sessionID int64) error {
	if err := a.acquire(); err != nil {
		return err
	}
	defer a.release()

	if a.persister == nil {
		return ErrNoPersister
	}
	persisted, err := a.persister.SessionMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session %d: %w", sessionID, err)
	}
	msgs := make([]chat.Message, 0, len(persisted))
	for _, p := range persisted {
		msgs = append(msgs, p.ToMessage())
	}

	id := sessionID
	a.store.Update(func(st State) State {
		st.Messages = msgs
		st.SessionID = &id
		return st
	})
	return nil
}

// Sessions lists the user's sessions.
func (a *Assembler) Sessions(ctx context.Context) ([]chat.SessionSummary, error) {
	if a.persister == nil {
		return nil, ErrNoPersister
	}
	return a.persister.UserSessions(ctx, a.email)
}

// LoadModels fetches the model catalogue and selects the first model with
// its default parameters.
func (a *Assembler) LoadModels(ctx context.Context) ([]chat.ModelDescriptor, error) {
	if a.persister == nil {
		return nil, ErrNoPersister
	}
	models, err := a.persister.ModelParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading models: %w", err)
	}
	if len(models) > 0 {
		first := models[0]
		a.store.Update(func(st State) State {
			st.Model = first.Name()
			st.Params = first.Params.Defaults()
			return st
		})
	}
	return models, nil
}

// onceCloser closes the wrapped stream on the first call only.
type onceCloser struct {
	EventStream
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		c.err = c.EventStream.Close()
	})
	return c.err
}
