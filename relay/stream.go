package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/backend"
	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/mock"
	"github.com/papercomputeco/typhoon/pkg/sse"
	"github.com/papercomputeco/typhoon/pkg/storage"
	"github.com/papercomputeco/typhoon/pkg/streamclient"
	"github.com/papercomputeco/typhoon/relay/header"
	"github.com/papercomputeco/typhoon/relay/worker"
)

// mockModel names the model on turns served by the GET mock route, which
// carries no request body.
const mockModel = "mock"

// producer writes a stream to w, folding the payloads it writes into acc.
// It reports whether the stream ended with the done sentinel.
type producer func(ctx context.Context, w io.Writer, acc *chat.Accumulator, turn *storage.Turn) (storage.TurnStatus, error)

// handleChat relays one chat request to the backend.
func (r *Relay) handleChat(c *fiber.Ctx) error {
	started := time.Now()

	var req chat.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(chat.ErrorResponse{Error: err.Error()})
	}

	r.logger.Debug("chat request",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.String("client", c.Get(header.ClientHeader)),
	)

	turn := newTurn(req.Model, len(req.Messages), req.LastUserContent(), started)
	if r.config.Mock {
		turn.Source = storage.SourceMock
		return r.serveMock(c, req.LastUserContent(), turn)
	}
	return r.serveBackend(c, &req, turn)
}

// handleMockChat serves the mock stream for ?message=.
func (r *Relay) handleMockChat(c *fiber.Ctx) error {
	message := strings.Clone(c.Query("message"))

	turn := newTurn(mockModel, 1, message, time.Now())
	turn.Source = storage.SourceMock
	return r.serveMock(c, message, turn)
}

func (r *Relay) serveBackend(c *fiber.Ctx, req *chat.ChatRequest, turn *storage.Turn) error {
	path := strings.Clone(c.Path())

	// The stream outlives the handler: fasthttp recycles the request context
	// once the handler returns, so the upstream gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), r.config.StreamTimeout)

	upstreamURL := r.config.BackendURL + backend.ChatPath
	r.logger.Debug("forwarding chat stream to backend", zap.String("url", upstreamURL))

	stream, err := r.streams.OpenWithHeader(ctx, upstreamURL, r.headerHandler.UpstreamHeaders(c), req)
	if err != nil {
		cancel()

		var statusErr *streamclient.StatusError
		if errors.As(err, &statusErr) {
			r.logger.Error("upstream returned error",
				zap.Int("status", statusErr.Code),
				zap.String("body", statusErr.Body),
			)
			r.finish(turn, nil, storage.TurnFailed, err, path, statusErr.Code)
			return c.Status(statusErr.Code).SendString(statusErr.Body)
		}

		r.logger.Error("upstream request failed", zap.Error(err))
		r.finish(turn, nil, storage.TurnFailed, err, path, fiber.StatusBadGateway)
		return c.Status(fiber.StatusBadGateway).JSON(chat.ErrorResponse{Error: "upstream request failed"})
	}

	r.headerHandler.SetClientResponseHeaders(c, stream.Header())
	r.headerHandler.SetEventStreamHeaders(c)

	r.pipe(ctx, cancel, c, turn, path, func() { _ = stream.Close() }, func(_ context.Context, w io.Writer, acc *chat.Accumulator, turn *storage.Turn) (storage.TurnStatus, error) {
		return r.relayEvents(stream, w, acc, turn)
	})
	return nil
}

// relayEvents copies events from stream to w until the sentinel, the end of
// the stream, or a failure on either side.
func (r *Relay) relayEvents(stream *streamclient.Stream, w io.Writer, acc *chat.Accumulator, turn *storage.Turn) (storage.TurnStatus, error) {
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			r.logger.Warn("backend ended stream without sentinel", zap.String("turn_id", turn.ID))
			return storage.TurnIncomplete, nil
		}
		if err != nil {
			return storage.TurnIncomplete, err
		}

		if chat.IsDone(ev.Data) {
			if err := sse.WriteData(w, chat.DonePayload); err != nil {
				return storage.TurnIncomplete, fmt.Errorf("writing to caller: %w", err)
			}
			return storage.TurnComplete, nil
		}

		if err := sse.WriteData(w, ev.Data); err != nil {
			return storage.TurnIncomplete, fmt.Errorf("writing to caller: %w", err)
		}

		p, err := chat.DecodePayload(ev.Data)
		if err != nil {
			turn.Skipped++
			r.logger.Debug("relayed malformed payload",
				zap.String("turn_id", turn.ID),
				zap.Error(err),
			)
			continue
		}
		acc.Apply(p)
	}
}

func (r *Relay) serveMock(c *fiber.Ctx, message string, turn *storage.Turn) error {
	path := strings.Clone(c.Path())
	ctx, cancel := context.WithTimeout(context.Background(), r.config.StreamTimeout)
	gen := mock.NewGenerator(message, mock.WithInterval(r.config.MockInterval))

	r.headerHandler.SetEventStreamHeaders(c)

	r.pipe(ctx, cancel, c, turn, path, func() {}, func(ctx context.Context, w io.Writer, acc *chat.Accumulator, _ *storage.Turn) (storage.TurnStatus, error) {
		err := gen.Run(ctx, func(p chat.Payload) error {
			data, err := p.Encode()
			if err != nil {
				return err
			}
			if err := sse.WriteData(w, data); err != nil {
				return fmt.Errorf("writing to caller: %w", err)
			}
			acc.Apply(p)
			return nil
		})
		if err != nil {
			return storage.TurnIncomplete, err
		}
		if err := sse.WriteData(w, chat.DonePayload); err != nil {
			return storage.TurnIncomplete, fmt.Errorf("writing to caller: %w", err)
		}
		return storage.TurnComplete, nil
	})
	return nil
}

// pipe runs produce on its own goroutine and streams what it writes to the
// caller.
//
// An io.Pipe is used as the body stream rather than SetBodyStreamWriter:
// pw.Write blocks until fasthttp's chunked writer has consumed the bytes and
// flushed them, so every event reaches the caller as soon as it is written.
//
// release is called once ctx ends and again after produce returns; it must
// unblock produce and be safe to call twice.
func (r *Relay) pipe(ctx context.Context, cancel context.CancelFunc, c *fiber.Ctx, turn *storage.Turn, path string, release func(), produce producer) {
	pr, pw := io.Pipe()

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer cancel()

		stop := context.AfterFunc(ctx, func() {
			release()
			_ = pr.CloseWithError(ctx.Err())
		})

		acc := &chat.Accumulator{}
		status, err := produce(ctx, pw, acc, turn)

		stop()
		release()

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = fmt.Errorf("stream ended early: %w", ctxErr)
			}
			_ = pw.CloseWithError(err)
		} else {
			_ = pw.Close()
		}

		r.finish(turn, acc, status, err, path, fiber.StatusOK)
	}()

	// Unknown size (-1) makes fasthttp use chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)
}

// finish completes the turn record and hands it to the worker pool.
func (r *Relay) finish(turn *storage.Turn, acc *chat.Accumulator, status storage.TurnStatus, err error, path string, httpStatus int) {
	turn.Status = status
	turn.CompletedAt = time.Now()
	if acc != nil {
		turn.Content = acc.Content()
		turn.Tokens = acc.Tokens()
		turn.TokenRate = acc.Rate()
		turn.Events = acc.Events()
	}
	if err != nil {
		turn.Error = err.Error()
	}

	fields := []zap.Field{
		zap.String("turn_id", turn.ID),
		zap.String("status", string(status)),
		zap.String("source", string(turn.Source)),
		zap.Int("events", turn.Events),
		zap.Int("skipped", turn.Skipped),
		zap.Duration("duration", turn.Duration()),
	}
	if err != nil {
		r.logger.Warn("stream relayed", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("stream relayed", fields...)
	}

	r.workerPool.Enqueue(worker.Job{Turn: turn, Path: path, HTTPStatus: httpStatus})
}

func newTurn(model string, messageCount int, prompt string, started time.Time) *storage.Turn {
	return &storage.Turn{
		ID:           uuid.NewString(),
		Model:        model,
		MessageCount: messageCount,
		Prompt:       prompt,
		Source:       storage.SourceBackend,
		StartedAt:    started,
	}
}
