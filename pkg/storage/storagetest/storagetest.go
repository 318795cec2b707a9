// Package storagetest holds the behaviour every storage.Driver must show,
// written as ginkgo specs shared by the driver test suites.
package storagetest

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/typhoon/pkg/storage"
)

// NewTurn returns a complete turn started at the given time.
func NewTurn(startedAt time.Time) *storage.Turn {
	return &storage.Turn{
		ID:           uuid.NewString(),
		Model:        "typhoon-7b",
		MessageCount: 3,
		Prompt:       "why is the sky blue?",
		Content:      "Rayleigh scattering.",
		Tokens:       42,
		TokenRate:    12.5,
		Events:       7,
		Skipped:      1,
		Status:       storage.TurnComplete,
		Source:       storage.SourceBackend,
		StartedAt:    startedAt.UTC().Truncate(time.Millisecond),
		CompletedAt:  startedAt.Add(1500 * time.Millisecond).UTC().Truncate(time.Millisecond),
	}
}

// DriverBehaviour registers the shared specs. driver is called from inside
// each test, after the caller's BeforeEach has run.
func DriverBehaviour(driver func() storage.Driver) {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("stores and retrieves a turn", func() {
		turn := NewTurn(time.Now())
		Expect(driver().Put(ctx, turn)).To(Succeed())

		got, err := driver().Get(ctx, turn.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(turn.ID))
		Expect(got.Model).To(Equal(turn.Model))
		Expect(got.MessageCount).To(Equal(3))
		Expect(got.Prompt).To(Equal(turn.Prompt))
		Expect(got.Content).To(Equal(turn.Content))
		Expect(got.Tokens).To(Equal(42))
		Expect(got.TokenRate).To(Equal(12.5))
		Expect(got.Events).To(Equal(7))
		Expect(got.Skipped).To(Equal(1))
		Expect(got.Status).To(Equal(storage.TurnComplete))
		Expect(got.Source).To(Equal(storage.SourceBackend))
		Expect(got.StartedAt.Equal(turn.StartedAt)).To(BeTrue())
		Expect(got.Duration()).To(Equal(1500 * time.Millisecond))
	})

	It("returns NotFoundError for unknown IDs", func() {
		_, err := driver().Get(ctx, "missing")
		Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
	})

	It("rejects nil turns", func() {
		Expect(driver().Put(ctx, nil)).To(MatchError(storage.ErrNilTurn))
	})

	It("rejects duplicate IDs", func() {
		turn := NewTurn(time.Now())
		Expect(driver().Put(ctx, turn)).To(Succeed())
		Expect(driver().Put(ctx, turn)).NotTo(Succeed())
	})

	It("lists most recent turns first and honours the limit", func() {
		base := time.Now().Add(-time.Hour)
		oldest := NewTurn(base)
		middle := NewTurn(base.Add(time.Minute))
		newest := NewTurn(base.Add(2 * time.Minute))
		for _, t := range []*storage.Turn{middle, oldest, newest} {
			Expect(driver().Put(ctx, t)).To(Succeed())
		}

		all, err := driver().List(ctx, storage.ListOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))
		Expect(all[0].ID).To(Equal(newest.ID))
		Expect(all[1].ID).To(Equal(middle.ID))
		Expect(all[2].ID).To(Equal(oldest.ID))

		limited, err := driver().List(ctx, storage.ListOptions{Limit: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(limited).To(HaveLen(2))
		Expect(limited[0].ID).To(Equal(newest.ID))
	})
}
