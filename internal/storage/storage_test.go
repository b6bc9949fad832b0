package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrispy.dev/agrispy/internal/storage"
	"agrispy.dev/agrispy/pkg/logger"
)

// behaveLikeAStore runs the shared contract against the store built by factory.
func behaveLikeAStore(factory func() storage.Store) {
	var (
		store storage.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = factory()
		ctx = context.Background()
	})

	It("should report missing keys as ErrNotFound", func() {
		_, err := store.Get(ctx, "agrispy_user")
		Expect(err).To(MatchError(storage.ErrNotFound))
	})

	It("should return what was set", func() {
		Expect(store.Set(ctx, "agrispy_user", `{"id":"1"}`)).To(Succeed())

		v, err := store.Get(ctx, "agrispy_user")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(`{"id":"1"}`))
	})

	It("should overwrite existing values", func() {
		Expect(store.Set(ctx, "k", "first")).To(Succeed())
		Expect(store.Set(ctx, "k", "second")).To(Succeed())

		Expect(store.Get(ctx, "k")).To(Equal("second"))
	})

	It("should delete keys and tolerate deleting missing ones", func() {
		Expect(store.Set(ctx, "k", "v")).To(Succeed())
		Expect(store.Delete(ctx, "k")).To(Succeed())
		Expect(store.Delete(ctx, "k")).To(Succeed())

		_, err := store.Get(ctx, "k")
		Expect(err).To(MatchError(storage.ErrNotFound))
	})

	It("should keep keys independent", func() {
		Expect(store.Set(ctx, "agrispy_user", "u")).To(Succeed())
		Expect(store.Set(ctx, "agrispy_settings", "s")).To(Succeed())
		Expect(store.Delete(ctx, "agrispy_user")).To(Succeed())

		Expect(store.Get(ctx, "agrispy_settings")).To(Equal("s"))
	})

	It("should reject an empty key", func() {
		Expect(store.Set(ctx, "  ", "v")).To(HaveOccurred())
	})

	It("should be safe for concurrent writers", func() {
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				Expect(store.Set(ctx, "k", string(rune('a'+i)))).To(Succeed())
			}()
		}
		wg.Wait()

		v, err := store.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(HaveLen(1))
	})
}

var _ = Describe("Storage", func() {
	Describe("MemoryStore", func() {
		behaveLikeAStore(func() storage.Store { return storage.NewMemoryStore() })
	})

	Describe("FileStore", func() {
		behaveLikeAStore(func() storage.Store {
			s, err := storage.NewFileStore(filepath.Join(GinkgoT().TempDir(), "state.json"), logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			return s
		})

		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "nested", "state.json")
		})

		It("should create the parent directory", func() {
			s, err := storage.NewFileStore(path, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Path()).To(Equal(path))
			Expect(filepath.Dir(path)).To(BeADirectory())
		})

		It("should survive reopening", func() {
			s, err := storage.NewFileStore(path, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Set(context.Background(), "agrispy_user", "persisted")).To(Succeed())

			reopened, err := storage.NewFileStore(path, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(reopened.Get(context.Background(), "agrispy_user")).To(Equal("persisted"))
		})

		It("should treat a corrupt file as empty and recover on the next write", func() {
			s, err := storage.NewFileStore(path, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(os.WriteFile(path, []byte("{not json"), 0o600)).To(Succeed())

			_, err = s.Get(context.Background(), "agrispy_user")
			Expect(err).To(MatchError(storage.ErrNotFound))

			Expect(s.Set(context.Background(), "agrispy_user", "fresh")).To(Succeed())
			Expect(s.Get(context.Background(), "agrispy_user")).To(Equal("fresh"))
		})

		It("should leave no temporary files behind", func() {
			s, err := storage.NewFileStore(path, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Set(context.Background(), "k", "v")).To(Succeed())

			entries, err := os.ReadDir(filepath.Dir(path))
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("should reject missing arguments", func() {
			_, err := storage.NewFileStore("", logger.Discard())
			Expect(err).To(HaveOccurred())

			_, err = storage.NewFileStore(path, nil)
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})
	})

	Describe("GormStore", func() {
		It("should reject a nil database", func() {
			_, err := storage.NewGormStore(nil)
			Expect(err).To(MatchError(ContainSubstring("cannot be nil")))
		})

		It("should map to the storage_entries table", func() {
			Expect(storage.Entry{}.TableName()).To(Equal("storage_entries"))
		})
	})

	Describe("ParseDriver", func() {
		DescribeTable("should normalise driver names",
			func(input, expected string) {
				Expect(storage.ParseDriver(input)).To(Equal(expected))
			},
			Entry("memory", "memory", storage.DriverMemory),
			Entry("upper-case file", "FILE", storage.DriverFile),
			Entry("postgres", " postgres ", storage.DriverPostgres),
			Entry("empty defaults to file", "", storage.DriverFile),
		)

		It("should reject unknown drivers", func() {
			_, err := storage.ParseDriver("redis")
			Expect(err).To(HaveOccurred())
		})
	})
})
