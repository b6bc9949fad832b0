package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/internal/storage"
	"agrispy.dev/agrispy/pkg/logger"
)

// failingStore wraps a MemoryStore and fails the operations that are switched on.
type failingStore struct {
	*storage.MemoryStore
	getErr, setErr, deleteErr error
}

func (f *failingStore) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStore.Delete(ctx, key)
}

var _ = Describe("Store", func() {
	var (
		backend *failingStore
		store   *identity.Store
		ctx     context.Context
		demo    identity.Identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = &failingStore{MemoryStore: storage.NewMemoryStore()}

		var err error
		store, err = identity.NewStore(backend, logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		demo = identity.Identity{
			ID:        "1",
			Name:      "Demo User",
			Email:     "demo@agrispy.com",
			Role:      identity.RoleFarmer,
			LastLogin: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		}
	})

	Describe("NewStore", func() {
		It("should require a backend and a logger", func() {
			_, err := identity.NewStore(nil, logger.Discard())
			Expect(err).To(HaveOccurred())

			_, err = identity.NewStore(storage.NewMemoryStore(), nil)
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})
	})

	Describe("Set", func() {
		It("should persist a JSON snapshot and make the identity current", func() {
			Expect(store.Set(ctx, demo)).To(Succeed())

			current, ok := store.Current()
			Expect(ok).To(BeTrue())
			Expect(current).To(Equal(demo))

			raw, err := backend.Get(ctx, identity.StorageKey)
			Expect(err).NotTo(HaveOccurred())

			var snapshot map[string]any
			Expect(json.Unmarshal([]byte(raw), &snapshot)).To(Succeed())
			Expect(snapshot).To(HaveKeyWithValue("id", "1"))
			Expect(snapshot).To(HaveKeyWithValue("role", "farmer"))
			Expect(snapshot).To(HaveKeyWithValue("lastLogin", "2024-06-01T08:00:00Z"))
		})

		It("should keep the previous identity when persistence fails", func() {
			Expect(store.Set(ctx, demo)).To(Succeed())

			backend.setErr = errors.New("disk full")
			other := demo
			other.ID = "2"
			Expect(store.Set(ctx, other)).To(MatchError(ContainSubstring("disk full")))

			current, ok := store.Current()
			Expect(ok).To(BeTrue())
			Expect(current.ID).To(Equal("1"))
		})

		It("should refuse an invalid identity", func() {
			demo.Role = "superuser"
			Expect(store.Set(ctx, demo)).To(HaveOccurred())

			_, ok := store.Current()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Load", func() {
		It("should leave the store empty when nothing is persisted", func() {
			store.Load(ctx)
			_, ok := store.Current()
			Expect(ok).To(BeFalse())
		})

		It("should restore a valid snapshot", func() {
			Expect(store.Set(ctx, demo)).To(Succeed())

			restored, err := identity.NewStore(backend, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			restored.Load(ctx)

			current, ok := restored.Current()
			Expect(ok).To(BeTrue())
			Expect(current).To(Equal(demo))
		})

		DescribeTable("should discard malformed snapshots",
			func(raw string) {
				Expect(backend.Set(ctx, identity.StorageKey, raw)).To(Succeed())

				store.Load(ctx)

				_, ok := store.Current()
				Expect(ok).To(BeFalse())
				_, err := backend.Get(ctx, identity.StorageKey)
				Expect(err).To(MatchError(storage.ErrNotFound))
			},
			Entry("not json", "{not json"),
			Entry("wrong shape", `["1"]`),
			Entry("unknown role", `{"id":"1","name":"x","email":"x@y.z","role":"root","lastLogin":"2024-06-01T08:00:00Z"}`),
			Entry("missing id", `{"name":"x","email":"x@y.z","role":"farmer","lastLogin":"2024-06-01T08:00:00Z"}`),
			Entry("bad timestamp", `{"id":"1","role":"farmer","lastLogin":"yesterday"}`),
			Entry("missing timestamp", `{"id":"1","role":"farmer"}`),
		)

		It("should treat a read failure as signed out", func() {
			Expect(store.Set(ctx, demo)).To(Succeed())
			backend.getErr = errors.New("io error")

			store.Load(ctx)

			_, ok := store.Current()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Clear", func() {
		It("should remove the identity and the snapshot", func() {
			Expect(store.Set(ctx, demo)).To(Succeed())
			Expect(store.Clear(ctx)).To(Succeed())

			_, ok := store.Current()
			Expect(ok).To(BeFalse())
			_, err := backend.Get(ctx, identity.StorageKey)
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("should clear memory even when the backend fails", func() {
			Expect(store.Set(ctx, demo)).To(Succeed())
			backend.deleteErr = errors.New("read-only")

			Expect(store.Clear(ctx)).To(MatchError(ContainSubstring("read-only")))
			_, ok := store.Current()
			Expect(ok).To(BeFalse())
		})
	})
})
