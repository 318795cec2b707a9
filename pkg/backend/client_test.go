package backend_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/typhoon/pkg/backend"
	"github.com/papercomputeco/typhoon/pkg/chat"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		client   *backend.Client
		lastPath string
		lastBody map[string]any
		handler  func(w http.ResponseWriter, r *http.Request)
	)

	BeforeEach(func() {
		lastPath = ""
		lastBody = nil
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastPath = r.Method + " " + r.URL.EscapedPath()
			if r.ContentLength > 0 {
				_ = json.NewDecoder(r.Body).Decode(&lastBody)
			}
			w.Header().Set("Content-Type", "application/json")
			handler(w, r)
		}))
		client = backend.New(server.URL + "/")
	})

	AfterEach(func() {
		server.Close()
	})

	It("registers a message", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":"ok","session_id":4,"message_id":11}`))
		}

		resp, err := client.RegisterMessage(GinkgoT().Context(), chat.RegisterMessageRequest{
			Email:      "a@b.c",
			Message:    "hi",
			Tokens:     3,
			TokenSpeed: 1.5,
			Role:       chat.RoleUser,
			Model:      chat.ModelName{Shortname: "s", Fullname: "f"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.SessionID).To(Equal(int64(4)))
		Expect(resp.MessageID).To(Equal(int64(11)))
		Expect(lastPath).To(Equal("POST /api/messages/register/v1"))
		Expect(lastBody).To(HaveKeyWithValue("role", "user"))
		Expect(lastBody).To(HaveKeyWithValue("tokenSpeed", 1.5))
		Expect(lastBody).NotTo(HaveKey("session_id"))
		Expect(lastBody).NotTo(HaveKey("message_id"))
	})

	It("sends neutral preferences as na", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true}`))
		}

		Expect(client.SetPreference(GinkgoT().Context(), 9, chat.PreferenceNeutral)).To(Succeed())
		Expect(lastPath).To(Equal("PATCH /api/messages/preference/v1"))
		Expect(lastBody).To(HaveKeyWithValue("preference", "na"))
		Expect(lastBody).To(HaveKeyWithValue("message_id", 9.0))
	})

	It("fetches session messages", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id":1,"role":"user","message":"q","total_tokens":0,"token_speed":0,"preference":"na"},
				{"id":2,"role":"bot","message":"a","total_tokens":5,"token_speed":2.5,"preference":"like"}]`))
		}

		msgs, err := client.SessionMessages(GinkgoT().Context(), 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastPath).To(Equal("GET /api/chat_sessions/42/messages/v1"))
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Role).To(Equal("bot"))
		Expect(msgs[1].TotalTokens).To(Equal(5))
	})

	It("escapes the email in session listings", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id":1,"user_id":2,"title":"t","created_at":"x","updated_at":"y"}]`))
		}

		sessions, err := client.UserSessions(GinkgoT().Context(), "a b@c.d")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastPath).To(Equal("GET /api/users/a%20b@c.d/chat_sessions/v1"))
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].Title).To(Equal("t"))
	})

	It("fetches the model catalogue", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id":1,"shortname":"t7b","fullname":"Typhoon 7B","params":{"temperature":{"default":0.5,"min":0,"max":1}}}]`))
		}

		models, err := client.ModelParams(GinkgoT().Context())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(HaveLen(1))
		Expect(models[0].Name()).To(Equal(chat.ModelName{Shortname: "t7b", Fullname: "Typhoon 7B"}))
		Expect(models[0].Params.Temperature.Default).To(Equal(0.5))
	})

	It("registers a user", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":"created","user_id":3,"email":"a@b.c"}`))
		}

		resp, err := client.RegisterUser(GinkgoT().Context(), "a@b.c")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.UserID).To(Equal(int64(3)))
		Expect(lastBody).To(HaveKeyWithValue("email", "a@b.c"))
	})

	It("returns an HTTPError carrying the backend detail", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Session not found"}`))
		}

		_, err := client.SessionMessages(GinkgoT().Context(), 1)
		var herr *backend.HTTPError
		Expect(errors.As(err, &herr)).To(BeTrue())
		Expect(herr.Code).To(Equal(http.StatusNotFound))
		Expect(herr.Detail).To(Equal("Session not found"))
	})
})
