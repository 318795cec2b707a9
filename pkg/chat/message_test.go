package chat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/typhoon/pkg/chat"
)

var _ = Describe("Message", func() {
	Describe("ParseRole", func() {
		It("accepts bot as an alias for assistant", func() {
			r, err := chat.ParseRole("bot")
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(chat.RoleAssistant))
		})

		It("rejects unknown roles", func() {
			_, err := chat.ParseRole("system")
			Expect(err).To(MatchError(chat.ErrUnknownRole))
		})
	})

	Describe("Preference", func() {
		It("spells neutral as na on the wire", func() {
			Expect(chat.PreferenceNeutral.Wire()).To(Equal("na"))
			Expect(chat.PreferenceLike.Wire()).To(Equal("like"))
			Expect(chat.PreferenceDislike.Wire()).To(Equal("dislike"))
		})

		It("parses wire and local spellings", func() {
			for _, s := range []string{"", "na", "neutral"} {
				p, err := chat.ParsePreference(s)
				Expect(err).NotTo(HaveOccurred())
				Expect(p).To(Equal(chat.PreferenceNeutral))
			}
			_, err := chat.ParsePreference("love")
			Expect(err).To(MatchError(chat.ErrUnknownPreference))
		})
	})

	Describe("PersistedMessage", func() {
		It("converts to a complete transcript message", func() {
			pm := chat.PersistedMessage{ID: 7, Role: "bot", Message: "hi", TotalTokens: 4, TokenSpeed: 3.14159, Preference: "like"}
			m := pm.ToMessage()
			Expect(m.IsBot).To(BeTrue())
			Expect(m.Content).To(Equal("hi"))
			Expect(m.TokenCount).To(Equal(4))
			Expect(m.TokenRate).To(Equal(3.14))
			Expect(*m.MessageID).To(Equal(int64(7)))
			Expect(m.Preference).To(Equal(chat.PreferenceLike))
			Expect(m.Status).To(Equal(chat.StatusComplete))
		})

		It("converts to the client history shape", func() {
			pm := chat.PersistedMessage{ID: 3, Role: "user", Message: "q", Preference: "na"}
			cm := pm.ToClient()
			Expect(cm.MessageID).To(Equal(int64(3)))
			Expect(cm.IsBot).To(BeFalse())
			Expect(cm.Content).To(Equal("q"))
			Expect(cm.Preference).To(Equal("na"))
		})
	})
})

var _ = Describe("ChatRequest", func() {
	It("validates a well formed request", func() {
		req := &chat.ChatRequest{
			Messages: []chat.Turn{{Role: chat.RoleUser, Content: "hi"}},
			Model:    "typhoon-7b",
		}
		Expect(req.Validate()).To(Succeed())
	})

	It("rejects an empty message list", func() {
		req := &chat.ChatRequest{Model: "m"}
		Expect(req.Validate()).To(MatchError(chat.ErrEmptyMessages))
	})

	It("rejects a missing model", func() {
		req := &chat.ChatRequest{Messages: []chat.Turn{{Role: chat.RoleUser, Content: "hi"}}}
		Expect(req.Validate()).To(MatchError(chat.ErrMissingModel))
	})

	It("rejects unknown roles", func() {
		req := &chat.ChatRequest{
			Messages: []chat.Turn{{Role: "system", Content: "hi"}},
			Model:    "m",
		}
		Expect(req.Validate()).To(MatchError(chat.ErrUnknownRole))
	})

	It("finds the last user turn", func() {
		req := &chat.ChatRequest{Messages: []chat.Turn{
			{Role: chat.RoleUser, Content: "first"},
			{Role: chat.RoleAssistant, Content: "answer"},
			{Role: chat.RoleUser, Content: "second"},
			{Role: chat.RoleAssistant, Content: "partial"},
		}}
		Expect(req.LastUserContent()).To(Equal("second"))
	})
})

var _ = Describe("ParamSchema", func() {
	schema := chat.ParamSchema{
		OutputLength:      chat.ParamRange{Default: 512, Min: 1, Max: 2048},
		Temperature:       chat.ParamRange{Default: 0.7, Min: 0, Max: 2},
		TopK:              chat.ParamRange{Default: 40, Min: 1, Max: 100},
		TopP:              chat.ParamRange{Default: 0.9, Min: 0, Max: 1},
		RepetitionPenalty: chat.ParamRange{Default: 1.1, Min: 1, Max: 2},
	}

	It("returns defaults", func() {
		Expect(schema.Defaults()).To(Equal(chat.ModelParams{
			OutputLength: 512, Temperature: 0.7, TopK: 40, TopP: 0.9, RepetitionPenalty: 1.1,
		}))
	})

	It("clamps out of range values", func() {
		p := schema.Clamp(chat.ModelParams{OutputLength: 9999, Temperature: -1, TopK: 50, TopP: 2, RepetitionPenalty: 1.5})
		Expect(p.OutputLength).To(Equal(2048.0))
		Expect(p.Temperature).To(Equal(0.0))
		Expect(p.TopK).To(Equal(50.0))
		Expect(p.TopP).To(Equal(1.0))
		Expect(p.RepetitionPenalty).To(Equal(1.5))
	})
})
