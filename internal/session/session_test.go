package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/internal/session"
	"agrispy.dev/agrispy/internal/storage"
	"agrispy.dev/agrispy/pkg/logger"
	"agrispy.dev/agrispy/pkg/metrics"
)

// flakyStore fails writes while failWrites is set and panics on writes while
// panicWrites is set.
type flakyStore struct {
	*storage.MemoryStore
	failWrites  atomic.Bool
	panicWrites atomic.Bool
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	if f.panicWrites.Load() {
		panic("storage exploded")
	}
	if f.failWrites.Load() {
		return errors.New("quota exceeded")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

var sessionMetricsSeq atomic.Int64

// counterValue reads a counter from the shared registry. An empty label name
// matches the first series.
func counterValue(name, label, value string) float64 {
	families, err := metrics.Registry.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, pair := range m.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

var _ = Describe("Service", func() {
	var (
		backend    *flakyStore
		identities *identity.Store
		svc        *session.Service
		ctx        context.Context
	)

	newService := func(cfg session.Config) *session.Service {
		cfg.Identities = identities
		cfg.Logger = logger.Discard()
		if cfg.LoginDelay == 0 {
			cfg.LoginDelay = 20 * time.Millisecond
		}
		if cfg.SignupDelay == 0 {
			cfg.SignupDelay = 20 * time.Millisecond
		}
		s, err := session.NewService(cfg)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		backend = &flakyStore{MemoryStore: storage.NewMemoryStore()}

		var err error
		identities, err = identity.NewStore(backend, logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		svc = newService(session.Config{})
	})

	Describe("NewService", func() {
		It("should require an identity store and a logger", func() {
			_, err := session.NewService(session.Config{Logger: logger.Discard()})
			Expect(err).To(MatchError(ContainSubstring("identity store cannot be nil")))

			_, err = session.NewService(session.Config{Identities: identities})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})
	})

	Describe("Login", func() {
		It("should commit the demo farmer for the accepted pair", func() {
			before := time.Now()
			Expect(svc.Login(ctx, session.DemoEmail, session.DemoPassword)).To(Succeed())

			current, ok := identities.Current()
			Expect(ok).To(BeTrue())
			Expect(current.ID).To(Equal("1"))
			Expect(current.Name).To(Equal("Demo User"))
			Expect(current.Email).To(Equal("demo@agrispy.com"))
			Expect(current.Role).To(Equal(identity.RoleFarmer))
			Expect(current.LastLogin).NotTo(BeTemporally("<", before))

			Expect(svc.State()).To(Equal(session.State{}))

			_, err := backend.Get(ctx, identity.StorageKey)
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("should reject every other pair without touching the store",
			func(email, password string) {
				err := svc.Login(ctx, email, password)
				Expect(err).To(MatchError(session.ErrInvalidCredentials))

				_, ok := identities.Current()
				Expect(ok).To(BeFalse())
				_, err = backend.Get(ctx, identity.StorageKey)
				Expect(err).To(MatchError(storage.ErrNotFound))

				state := svc.State()
				Expect(state.Loading).To(BeFalse())
				Expect(state.Error).To(Equal("Invalid credentials"))
			},
			Entry("wrong password", "demo@agrispy.com", "hunter2"),
			Entry("wrong email", "farmer@agrispy.com", "password"),
			Entry("case differs", "Demo@agrispy.com", "password"),
			Entry("empty", "", ""),
		)

		It("should keep an existing identity when rejected", func() {
			Expect(svc.Login(ctx, session.DemoEmail, session.DemoPassword)).To(Succeed())
			Expect(svc.Login(ctx, session.DemoEmail, "nope")).To(HaveOccurred())

			current, ok := identities.Current()
			Expect(ok).To(BeTrue())
			Expect(current.ID).To(Equal("1"))
		})

		It("should report loading while outstanding", func() {
			slow := newService(session.Config{LoginDelay: 300 * time.Millisecond})

			done := make(chan error, 1)
			go func() { done <- slow.Login(ctx, session.DemoEmail, session.DemoPassword) }()

			Eventually(slow.Loading).Should(BeTrue())
			Eventually(done, time.Second).Should(Receive(BeNil()))
			Expect(slow.Loading()).To(BeFalse())
		})

		It("should clear the previous error when a new attempt starts", func() {
			slow := newService(session.Config{LoginDelay: 300 * time.Millisecond})
			Expect(slow.Login(ctx, "x", "y")).To(HaveOccurred())
			Expect(slow.State().Error).NotTo(BeEmpty())

			go func() { _ = slow.Login(ctx, session.DemoEmail, session.DemoPassword) }()

			Eventually(slow.State).Should(Equal(session.State{Loading: true}))
			Eventually(slow.State, time.Second).Should(Equal(session.State{}))
		})

		It("should stop waiting when the context is cancelled", func() {
			slow := newService(session.Config{LoginDelay: 5 * time.Second})
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			start := time.Now()
			Expect(slow.Login(cctx, session.DemoEmail, session.DemoPassword)).To(MatchError(context.Canceled))
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))

			_, ok := identities.Current()
			Expect(ok).To(BeFalse())
			Expect(slow.State()).To(Equal(session.State{Error: "Request cancelled"}))
		})

		It("should surface storage failures as the error message", func() {
			backend.failWrites.Store(true)

			err := svc.Login(ctx, session.DemoEmail, session.DemoPassword)
			Expect(err).To(MatchError(ContainSubstring("quota exceeded")))
			Expect(svc.State().Error).To(ContainSubstring("quota exceeded"))
			Expect(svc.Loading()).To(BeFalse())
		})

		It("should recover from a panic in the storage layer", func() {
			backend.panicWrites.Store(true)

			var err error
			Expect(func() {
				err = svc.Login(ctx, session.DemoEmail, session.DemoPassword)
			}).NotTo(Panic())
			Expect(err).To(MatchError(ContainSubstring("storage exploded")))
			Expect(svc.State().Error).To(ContainSubstring("storage exploded"))
			Expect(svc.Loading()).To(BeFalse())
		})

		It("should apply the default latency", func() {
			s, err := session.NewService(session.Config{Identities: identities, Logger: logger.Discard()})
			Expect(err).NotTo(HaveOccurred())

			start := time.Now()
			Expect(s.Login(ctx, session.DemoEmail, session.DemoPassword)).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically(">=", session.DefaultLoginDelay))
		})
	})

	Describe("Signup", func() {
		It("should commit a new identity with a fresh id", func() {
			now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
			s := newService(session.Config{
				Now:   func() time.Time { return now },
				NewID: func() string { return "generated-id" },
			})

			Expect(s.Signup(ctx, "Asha", "asha@farm.in", "secret1", identity.RoleResearcher)).To(Succeed())

			current, ok := identities.Current()
			Expect(ok).To(BeTrue())
			Expect(current).To(Equal(identity.Identity{
				ID:        "generated-id",
				Name:      "Asha",
				Email:     "asha@farm.in",
				Role:      identity.RoleResearcher,
				LastLogin: now,
			}))
		})

		It("should issue distinct ids and not check for duplicates", func() {
			Expect(svc.Signup(ctx, "A", "same@farm.in", "secret1", identity.RoleFarmer)).To(Succeed())
			first, _ := identities.Current()
			Expect(svc.Signup(ctx, "B", "same@farm.in", "secret1", identity.RoleFarmer)).To(Succeed())
			second, _ := identities.Current()

			Expect(first.ID).NotTo(BeEmpty())
			Expect(second.ID).NotTo(Equal(first.ID))
			Expect(second.Name).To(Equal("B"))
		})

		It("should fail for an unknown role", func() {
			err := svc.Signup(ctx, "A", "a@farm.in", "secret1", identity.Role("root"))
			Expect(err).To(MatchError(identity.ErrUnknownRole))
			Expect(svc.State().Error).NotTo(BeEmpty())
		})
	})

	Describe("overlapping operations", func() {
		It("should stay loading until every call settles and keep the last write", func() {
			s := newService(session.Config{
				LoginDelay:  100 * time.Millisecond,
				SignupDelay: 300 * time.Millisecond,
			})

			loginDone := make(chan error, 1)
			signupDone := make(chan error, 1)
			go func() { loginDone <- s.Login(ctx, session.DemoEmail, session.DemoPassword) }()
			go func() {
				signupDone <- s.Signup(ctx, "Later", "later@farm.in", "secret1", identity.RoleAdmin)
			}()

			Eventually(loginDone, time.Second).Should(Receive(BeNil()))
			Expect(s.Loading()).To(BeTrue())

			Eventually(signupDone, time.Second).Should(Receive(BeNil()))
			Expect(s.Loading()).To(BeFalse())

			current, _ := identities.Current()
			Expect(current.Role).To(Equal(identity.RoleAdmin))
		})
	})

	DescribeTable("Message",
		func(err error, expected string) {
			Expect(session.Message(err)).To(Equal(expected))
		},
		Entry("rejected credentials", session.ErrInvalidCredentials, session.InvalidCredentialsMessage),
		Entry("wrapped rejection", fmt.Errorf("login: %w", session.ErrInvalidCredentials), session.InvalidCredentialsMessage),
		Entry("cancelled request", context.Canceled, "Request cancelled"),
		Entry("timed out request", context.DeadlineExceeded, "Request cancelled"),
		Entry("empty message", errors.New(""), "An unknown error occurred"),
		Entry("anything else", errors.New("identity: persist: disk full"), "identity: persist: disk full"),
	)

	It("should return the same text it records in State", func() {
		err := svc.Login(ctx, session.DemoEmail, "nope")
		Expect(session.Message(err)).To(Equal(svc.State().Error))
	})

	Describe("Logout", func() {
		It("should clear the identity and the snapshot", func() {
			Expect(svc.Login(ctx, session.DemoEmail, session.DemoPassword)).To(Succeed())
			Expect(svc.Logout(ctx)).To(Succeed())

			_, ok := identities.Current()
			Expect(ok).To(BeFalse())
			_, err := backend.Get(ctx, identity.StorageKey)
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("should succeed when nobody is signed in", func() {
			Expect(svc.Logout(ctx)).To(Succeed())
		})
	})

	Describe("Restore", func() {
		It("should load the persisted identity", func() {
			Expect(svc.Login(ctx, session.DemoEmail, session.DemoPassword)).To(Succeed())

			fresh, err := identity.NewStore(backend, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			s, err := session.NewService(session.Config{Identities: fresh, Logger: logger.Discard()})
			Expect(err).NotTo(HaveOccurred())

			s.Restore(ctx)

			current, ok := s.Identities().Current()
			Expect(ok).To(BeTrue())
			Expect(current.ID).To(Equal("1"))
			Expect(s.Loading()).To(BeFalse())
		})
	})

	Describe("metrics", func() {
		It("should count attempts by outcome", func() {
			ns := fmt.Sprintf("session_test_%d", sessionMetricsSeq.Add(1))
			m := metrics.NewSessionMetrics(ns)
			s := newService(session.Config{Metrics: m})

			Expect(s.Login(ctx, session.DemoEmail, session.DemoPassword)).To(Succeed())
			Expect(s.Login(ctx, session.DemoEmail, "bad")).To(HaveOccurred())
			Expect(s.Logout(ctx)).To(Succeed())

			Expect(counterValue(ns+"_session_attempts_total", "outcome", "success")).To(Equal(1.0))
			Expect(counterValue(ns+"_session_attempts_total", "outcome", "invalid_credentials")).To(Equal(1.0))
			Expect(counterValue(ns+"_session_logouts_total", "", "")).To(Equal(1.0))
		})
	})
})
