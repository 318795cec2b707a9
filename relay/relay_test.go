package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/eventstream/eventstreamtest"
	"github.com/papercomputeco/typhoon/pkg/storage"
	"github.com/papercomputeco/typhoon/pkg/storage/inmemory"
	"github.com/papercomputeco/typhoon/relay/auth"
)

var _ = Describe("New", func() {
	It("requires a backend unless mocking", func() {
		_, err := New(Config{}, inmemory.NewDriver(), nil, nil)
		Expect(err).To(MatchError(ContainSubstring("backend URL is required")))
	})

	It("accepts a mock relay without a backend", func() {
		r, err := New(Config{Mock: true}, inmemory.NewDriver(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Close()).To(Succeed())
	})
})

var _ = Describe("Chat relay", func() {
	var (
		r        *Relay
		driver   *inmemory.Driver
		recorder *eventstreamtest.Recorder
		upstream *httptest.Server
	)

	AfterEach(func() {
		if r != nil {
			r.Close()
		}
		if upstream != nil {
			upstream.Close()
		}
	})

	Context("when the backend streams a complete answer", func() {
		BeforeEach(func() {
			upstream = sseUpstream(
				payload("Hello", 1, 3.333),
				payload(" world", 2, 4.5),
				"done",
			)
			r, driver, recorder = newTestRelay(Config{BackendURL: upstream.URL})
		})

		It("relays each event verbatim and in order, ending with the sentinel", func() {
			resp := postChat(r, chatBody("typhoon-7b", userTurn("Say hello")))
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-store"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(
				"data: " + payload("Hello", 1, 3.333) + "\n\n" +
					"data: " + payload(" world", 2, 4.5) + "\n\n" +
					"data: done\n\n",
			))
		})

		It("records the assembled turn and publishes it", func() {
			resp := postChat(r, chatBody("typhoon-7b",
				userTurn("hi"),
				chat.Turn{Role: chat.RoleAssistant, Content: "hello"},
				userTurn("Say hello"),
			))
			_, _ = io.ReadAll(resp.Body)
			resp.Body.Close()

			turns := storedTurns(r, driver)
			Expect(turns).To(HaveLen(1))

			turn := turns[0]
			Expect(turn.Status).To(Equal(storage.TurnComplete))
			Expect(turn.Source).To(Equal(storage.SourceBackend))
			Expect(turn.Model).To(Equal("typhoon-7b"))
			Expect(turn.MessageCount).To(Equal(3))
			Expect(turn.Prompt).To(Equal("Say hello"))
			Expect(turn.Content).To(Equal("Hello world"))
			Expect(turn.Tokens).To(Equal(2))
			Expect(turn.TokenRate).To(Equal(4.5))
			Expect(turn.Events).To(Equal(2))
			Expect(turn.Error).To(BeEmpty())
			Expect(turn.CompletedAt).NotTo(BeTemporally("<", turn.StartedAt))

			events := recorder.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Turn.ID).To(Equal(turn.ID))
			Expect(events[0].Request.Path).To(Equal(ChatRoute))
			Expect(events[0].Request.HTTPStatus).To(Equal(http.StatusOK))
		})
	})

	It("forwards the request body and ordinary headers to the backend chat path", func() {
		var (
			mu      sync.Mutex
			gotPath string
			gotReq  chat.ChatRequest
			gotHdr  http.Header
		)
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			mu.Lock()
			gotPath = req.URL.Path
			gotHdr = req.Header.Clone()
			_ = json.NewDecoder(req.Body).Decode(&gotReq)
			mu.Unlock()

			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: done\n\n")
		}))
		r, _, _ = newTestRelay(Config{BackendURL: upstream.URL + "/"})

		req := httptest.NewRequest(http.MethodPost, ChatRoute, bytes.NewReader(chatBody("typhoon-7b", userTurn("hi"))))
		req.Header.Set("X-Request-Id", "abc-123")
		req.Header.Set("Authorization", "Bearer ui-token")
		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		_, _ = io.ReadAll(resp.Body)
		resp.Body.Close()

		mu.Lock()
		defer mu.Unlock()
		Expect(gotPath).To(Equal("/api/llm/chat/v1"))
		Expect(gotReq.Model).To(Equal("typhoon-7b"))
		Expect(gotReq.Messages).To(Equal([]chat.Turn{userTurn("hi")}))
		Expect(gotHdr.Get("X-Request-Id")).To(Equal("abc-123"))
		Expect(gotHdr.Get("Authorization")).To(BeEmpty())
		Expect(gotHdr.Get("Accept")).To(Equal("text/event-stream"))
	})

	It("normalises a quoted sentinel and drops anything after it", func() {
		upstream = sseUpstream(payload("a", 1, 1), `"done"`, payload("late", 2, 2))
		r, driver, _ = newTestRelay(Config{BackendURL: upstream.URL})

		resp := postChat(r, chatBody("m", userTurn("hi")))
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())

		Expect(string(body)).To(HaveSuffix("data: done\n\n"))
		Expect(string(body)).NotTo(ContainSubstring("late"))

		turns := storedTurns(r, driver)
		Expect(turns[0].Content).To(Equal("a"))
	})

	It("relays a malformed payload but leaves it out of the record", func() {
		upstream = sseUpstream(payload("ok", 1, 1), "{not json", "done")
		r, driver, _ = newTestRelay(Config{BackendURL: upstream.URL})

		resp := postChat(r, chatBody("m", userTurn("hi")))
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		Expect(string(body)).To(ContainSubstring("data: {not json\n\n"))

		turns := storedTurns(r, driver)
		Expect(turns[0].Status).To(Equal(storage.TurnComplete))
		Expect(turns[0].Content).To(Equal("ok"))
		Expect(turns[0].Events).To(Equal(1))
		Expect(turns[0].Skipped).To(Equal(1))
	})

	It("ends cleanly but records an incomplete turn when the backend omits the sentinel", func() {
		upstream = sseUpstream(payload("partial", 1, 1))
		r, driver, _ = newTestRelay(Config{BackendURL: upstream.URL})

		resp := postChat(r, chatBody("m", userTurn("hi")))
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).NotTo(ContainSubstring("data: done"))

		turns := storedTurns(r, driver)
		Expect(turns[0].Status).To(Equal(storage.TurnIncomplete))
		Expect(turns[0].Content).To(Equal("partial"))
	})

	Describe("request validation", func() {
		var called bool

		BeforeEach(func() {
			called = false
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
			}))
			r, _, _ = newTestRelay(Config{BackendURL: upstream.URL})
		})

		DescribeTable("answers 400 without contacting the backend",
			func(body string) {
				resp := postChat(r, []byte(body))
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var errResp chat.ErrorResponse
				Expect(json.NewDecoder(resp.Body).Decode(&errResp)).To(Succeed())
				Expect(errResp.Error).NotTo(BeEmpty())
				Expect(called).To(BeFalse())
			},
			Entry("invalid JSON", `{"messages":`),
			Entry("no messages", `{"model":"m","messages":[]}`),
			Entry("no model", `{"messages":[{"role":"user","content":"hi"}]}`),
			Entry("unknown role", `{"model":"m","messages":[{"role":"system","content":"hi"}]}`),
		)
	})

	Describe("backend failures", func() {
		It("answers 502 when the backend cannot be reached and records a failed turn", func() {
			dead := httptest.NewServer(http.NotFoundHandler())
			deadURL := dead.URL
			dead.Close()

			r, driver, _ = newTestRelay(Config{BackendURL: deadURL})

			resp := postChat(r, chatBody("m", userTurn("hi")))
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			var errResp chat.ErrorResponse
			Expect(json.NewDecoder(resp.Body).Decode(&errResp)).To(Succeed())
			Expect(errResp.Error).To(Equal("upstream request failed"))

			turns := storedTurns(r, driver)
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Status).To(Equal(storage.TurnFailed))
			Expect(turns[0].Error).NotTo(BeEmpty())
		})

		It("passes a non-200 backend status and body through", func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"detail":"overloaded"}`)
			}))
			r, _, recorder = newTestRelay(Config{BackendURL: upstream.URL})

			resp := postChat(r, chatBody("m", userTurn("hi")))
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal(`{"detail":"overloaded"}`))

			Expect(r.Close()).To(Succeed())
			Expect(recorder.Events()).To(HaveLen(1))
			Expect(recorder.Events()[0].Request.HTTPStatus).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("over a real connection", func() {
		It("delivers the first event before the backend has finished", func() {
			release := make(chan struct{})
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprintf(w, "data: %s\n\n", payload("first", 1, 1))
				w.(http.Flusher).Flush()
				<-release
				fmt.Fprint(w, "data: done\n\n")
			}))
			r, _, _ = newTestRelay(Config{BackendURL: upstream.URL})
			base := serveOnListener(r)

			resp, err := http.Post(base+ChatRoute, "application/json", bytes.NewReader(chatBody("m", userTurn("hi"))))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			line := make([]byte, len("data: "))
			_, err = io.ReadFull(resp.Body, line)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(line)).To(Equal("data: "))

			close(release)
			events, err := readEvents(io.MultiReader(strings.NewReader("data: "), resp.Body))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]string{payload("first", 1, 1), "done"}))
		})

		It("breaks the caller's stream when the backend transport fails", func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				conn, buf, err := w.(http.Hijacker).Hijack()
				Expect(err).NotTo(HaveOccurred())
				_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: 4096\r\n\r\n")
				_, _ = buf.WriteString("data: " + payload("partial", 1, 1) + "\n\n")
				_ = buf.Flush()
				_ = conn.Close()
			}))
			r, driver, _ = newTestRelay(Config{BackendURL: upstream.URL})
			base := serveOnListener(r)

			resp, err := http.Post(base+ChatRoute, "application/json", bytes.NewReader(chatBody("m", userTurn("hi"))))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).To(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("partial"))
			Expect(string(body)).NotTo(ContainSubstring("data: done"))

			turns := storedTurns(r, driver)
			Expect(turns[0].Status).To(Equal(storage.TurnIncomplete))
			Expect(turns[0].Content).To(Equal("partial"))
			Expect(turns[0].Error).NotTo(BeEmpty())
		})

		It("gives up on a backend that outlives the stream timeout", func() {
			hold := make(chan struct{})
			defer close(hold)
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprintf(w, "data: %s\n\n", payload("slow", 1, 1))
				w.(http.Flusher).Flush()
				select {
				case <-hold:
				case <-req.Context().Done():
				}
			}))
			r, driver, _ = newTestRelay(Config{BackendURL: upstream.URL, StreamTimeout: 200 * time.Millisecond})
			base := serveOnListener(r)

			resp, err := http.Post(base+ChatRoute, "application/json", bytes.NewReader(chatBody("m", userTurn("hi"))))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			_, err = io.ReadAll(resp.Body)
			Expect(err).To(HaveOccurred())

			turns := storedTurns(r, driver)
			Expect(turns[0].Status).To(Equal(storage.TurnIncomplete))
			Expect(turns[0].Error).To(ContainSubstring("deadline exceeded"))
		})

		It("closes the backend stream when the caller goes away", func() {
			backendGone := make(chan struct{})
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				defer close(backendGone)
				w.Header().Set("Content-Type", "text/event-stream")
				ticker := time.NewTicker(5 * time.Millisecond)
				defer ticker.Stop()
				for i := 0; ; i++ {
					select {
					case <-req.Context().Done():
						return
					case <-ticker.C:
					}
					fmt.Fprintf(w, "data: %s\n\n", payload(fmt.Sprint(i), i, 1))
					w.(http.Flusher).Flush()
				}
			}))
			r, driver, _ = newTestRelay(Config{BackendURL: upstream.URL})
			base := serveOnListener(r)

			resp, err := http.Post(base+ChatRoute, "application/json", bytes.NewReader(chatBody("m", userTurn("hi"))))
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, 16)
			_, err = io.ReadFull(resp.Body, buf)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Eventually(backendGone, 5*time.Second).Should(BeClosed())

			turns := storedTurns(r, driver)
			Expect(turns[0].Status).To(Equal(storage.TurnIncomplete))
		})
	})

	Describe("auth", func() {
		BeforeEach(func() {
			upstream = sseUpstream("done")
			r, _, _ = newTestRelay(Config{BackendURL: upstream.URL, JWTSecret: "s3cret"})
		})

		It("rejects a chat request without a token", func() {
			resp := postChat(r, chatBody("m", userTurn("hi")))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("relays a chat request with a valid token", func() {
			token, err := auth.Sign("s3cret", "ada@example.com", time.Minute)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodPost, ChatRoute, bytes.NewReader(chatBody("m", userTurn("hi"))))
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := r.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("leaves /ping open", func() {
			resp, err := r.server.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("rate limiting", func() {
		It("answers 429 once a caller exceeds its rate", func() {
			r, _, _ = newTestRelay(Config{Mock: true, MockInterval: time.Millisecond, RequestsPerSecond: 0.001, Burst: 1})

			first, err := r.server.Test(httptest.NewRequest(http.MethodGet, ChatRoute+"?message=a", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			_, _ = io.ReadAll(first.Body)
			first.Body.Close()
			Expect(first.StatusCode).To(Equal(http.StatusOK))

			second, err := r.server.Test(httptest.NewRequest(http.MethodGet, ChatRoute+"?message=b", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer second.Body.Close()
			Expect(second.StatusCode).To(Equal(http.StatusTooManyRequests))
		})
	})
})
