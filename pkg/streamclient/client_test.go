package streamclient_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/typhoon/pkg/streamclient"
)

func sseHandler(frames []string, hold bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}
}

var _ = Describe("Client", func() {
	var client *streamclient.Client

	BeforeEach(func() {
		client = streamclient.New()
	})

	Context("when the server streams events", func() {
		It("yields each event in order and then io.EOF", func() {
			var gotBody map[string]any
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.Header.Get("Accept")).To(Equal("text/event-stream"))
				Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())
				sseHandler([]string{`{"content":"a"}`, `{"content":"b"}`, "done"}, false)(w, r)
			}))
			defer upstream.Close()

			stream, err := client.Open(GinkgoT().Context(), upstream.URL, map[string]string{"model": "m"})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			var data []string
			for {
				ev, err := stream.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				Expect(err).NotTo(HaveOccurred())
				data = append(data, ev.Data)
			}

			Expect(data).To(Equal([]string{`{"content":"a"}`, `{"content":"b"}`, "done"}))
			Expect(gotBody).To(HaveKeyWithValue("model", "m"))
		})

		It("supports GET streams", func() {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				sseHandler([]string{"one"}, false)(w, r)
			}))
			defer upstream.Close()

			stream, err := client.OpenGet(GinkgoT().Context(), upstream.URL)
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			ev, err := stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("one"))
		})

		It("sends configured headers", func() {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer t"))
				sseHandler(nil, false)(w, r)
			}))
			defer upstream.Close()

			c := streamclient.New(streamclient.WithHeader("Authorization", "Bearer t"))
			stream, err := c.Open(GinkgoT().Context(), upstream.URL, struct{}{})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			_, err = stream.Next()
			Expect(err).To(MatchError(io.EOF))
		})
	})

	Context("when the connection cannot be established", func() {
		It("returns ErrConnect for an unreachable server", func() {
			upstream := httptest.NewServer(http.NotFoundHandler())
			url := upstream.URL
			upstream.Close()

			_, err := client.Open(GinkgoT().Context(), url, struct{}{})
			Expect(err).To(MatchError(streamclient.ErrConnect))
		})

		It("returns a StatusError for non-200 responses", func() {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"detail":"model loading"}`))
			}))
			defer upstream.Close()

			_, err := client.Open(GinkgoT().Context(), upstream.URL, struct{}{})
			Expect(err).To(MatchError(streamclient.ErrConnect))

			var statusErr *streamclient.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(statusErr.Body).To(ContainSubstring("model loading"))
		})
	})

	Context("when the transport fails mid-stream", func() {
		It("returns ErrTransport rather than io.EOF", func() {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, buf, err := w.(http.Hijacker).Hijack()
				Expect(err).NotTo(HaveOccurred())
				_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: 4096\r\n\r\n")
				_, _ = buf.WriteString("data: {\"content\":\"partial\"}\n\n")
				_ = buf.Flush()
				_ = conn.Close()
			}))
			defer upstream.Close()

			stream, err := client.Open(GinkgoT().Context(), upstream.URL, struct{}{})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			ev, err := stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal(`{"content":"partial"}`))

			_, err = stream.Next()
			Expect(err).To(MatchError(streamclient.ErrTransport))
			Expect(errors.Is(err, io.EOF)).To(BeFalse())
		})
	})

	Context("when the stream is closed", func() {
		It("delivers no further events", func() {
			upstream := httptest.NewServer(sseHandler([]string{"first", "second"}, true))
			defer upstream.Close()

			stream, err := client.Open(GinkgoT().Context(), upstream.URL, struct{}{})
			Expect(err).NotTo(HaveOccurred())

			ev, err := stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("first"))

			Expect(stream.Close()).To(Succeed())
			Expect(stream.Close()).To(Succeed())

			_, err = stream.Next()
			Expect(err).To(MatchError(streamclient.ErrClosed))
		})

		It("unblocks a pending Next", func() {
			upstream := httptest.NewServer(sseHandler(nil, true))
			defer upstream.Close()

			stream, err := client.Open(GinkgoT().Context(), upstream.URL, struct{}{})
			Expect(err).NotTo(HaveOccurred())

			errCh := make(chan error, 1)
			go func() {
				_, err := stream.Next()
				errCh <- err
			}()

			Consistently(errCh, 100*time.Millisecond).ShouldNot(Receive())
			_ = stream.Close()
			Eventually(errCh, 2*time.Second).Should(Receive(MatchError(streamclient.ErrClosed)))
		})
	})
})
