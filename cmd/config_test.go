package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"agrispy.dev/agrispy/internal/storage"
)

var _ = Describe("CLI", func() {
	It("should register every subcommand", func() {
		names := []string{}
		for _, c := range rootCmd.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements("serve", "archive", "simulate"))
	})

	Describe("InitConfig", Ordered, func() {
		It("should let AGRISPY_ environment variables override defaults", func() {
			Expect(os.Setenv("AGRISPY_LOG_LEVEL", "debug")).To(Succeed())
			DeferCleanup(os.Unsetenv, "AGRISPY_LOG_LEVEL")

			Expect(InitConfig("")).To(Succeed())
			Expect(viper.GetString("log.level")).To(Equal("debug"))
			Expect(GetLogger().Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
		})

		It("should read values from an explicit config file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "agrispy.yaml")
			Expect(os.WriteFile(path, []byte("simulate:\n  fields: 7\n"), 0o600)).To(Succeed())

			Expect(InitConfig(path)).To(Succeed())
			Expect(viper.GetInt("simulate.fields")).To(Equal(7))
		})
	})

	Describe("openStorage", func() {
		It("should build an in-memory store", func() {
			viper.Set("serve.storage.driver", "memory")

			store, closeStore, err := openStorage(slog.Default())
			Expect(err).NotTo(HaveOccurred())
			Expect(store).To(BeAssignableToTypeOf(&storage.MemoryStore{}))
			Expect(closeStore()).To(Succeed())
		})

		It("should build a file store at the configured path", func() {
			path := filepath.Join(GinkgoT().TempDir(), "session.json")
			viper.Set("serve.storage.driver", "FILE")
			viper.Set("serve.storage.path", path)

			store, _, err := openStorage(slog.Default())
			Expect(err).NotTo(HaveOccurred())

			fileStore, ok := store.(*storage.FileStore)
			Expect(ok).To(BeTrue())
			Expect(fileStore.Path()).To(Equal(path))
		})

		It("should reject an unknown driver", func() {
			viper.Set("serve.storage.driver", "redis")

			_, _, err := openStorage(slog.Default())
			Expect(err).To(MatchError(ContainSubstring("unknown driver")))
		})
	})
})
