package guard_test

import (
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrispy.dev/agrispy/internal/guard"
	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/pkg/logger"
)

type fakeIdentities struct {
	mu  sync.Mutex
	id  identity.Identity
	set bool
}

func (f *fakeIdentities) Current() (identity.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.set
}

func (f *fakeIdentities) signIn(role identity.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = identity.Identity{ID: "1", Name: "Demo User", Role: role}
	f.set = true
}

type fakeSession struct{ loading bool }

func (f *fakeSession) Loading() bool { return f.loading }

var _ = Describe("Middleware", func() {
	var (
		ids     *fakeIdentities
		sess    *fakeSession
		g       *guard.Guard
		reached *identity.Identity
		next    http.Handler
	)

	BeforeEach(func() {
		ids = &fakeIdentities{}
		sess = &fakeSession{}
		reached = nil

		var err error
		g, err = guard.New(guard.Config{Identities: ids, Session: sess, Logger: logger.Discard()})
		Expect(err).NotTo(HaveOccurred())

		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := guard.FromContext(r.Context())
			Expect(ok).To(BeTrue())
			reached = &id
			w.WriteHeader(http.StatusOK)
		})
	})

	serve := func(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	Describe("New", func() {
		It("should require its sources", func() {
			_, err := guard.New(guard.Config{Session: sess})
			Expect(err).To(HaveOccurred())

			_, err = guard.New(guard.Config{Identities: ids})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RequireAuth", func() {
		It("should redirect anonymous visitors to login with 303", func() {
			rec := serve(g.RequireAuth(next), httptest.NewRequest(http.MethodGet, "/monitoring", nil))

			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(rec.Header().Get("Location")).To(Equal("/login"))
			Expect(reached).To(BeNil())
		})

		It("should use HX-Redirect for htmx requests", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/telemetry", nil)
			req.Header.Set("HX-Request", "true")

			rec := serve(g.RequireAuth(next), req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("HX-Redirect")).To(Equal("/login"))
			Expect(rec.Header().Get("Location")).To(BeEmpty())
		})

		It("should render the placeholder while loading", func() {
			sess.loading = true

			rec := serve(g.RequireAuth(next), httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Refresh")).To(Equal("1"))
			Expect(rec.Body.String()).To(ContainSubstring("Loading"))
			Expect(reached).To(BeNil())
		})

		It("should pass the identity through for signed-in operators", func() {
			ids.signIn(identity.RoleFarmer)

			rec := serve(g.RequireAuth(next), httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(reached).NotTo(BeNil())
			Expect(reached.Role).To(Equal(identity.RoleFarmer))
		})

		It("should re-evaluate on every request", func() {
			h := g.RequireAuth(next)
			Expect(serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code).To(Equal(http.StatusSeeOther))

			ids.signIn(identity.RoleFarmer)
			Expect(serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code).To(Equal(http.StatusOK))
		})
	})

	Describe("RequireRole", func() {
		It("should send a farmer home from reports", func() {
			ids.signIn(identity.RoleFarmer)

			rec := serve(g.RequireRole(next, identity.RoleAdmin, identity.RoleResearcher),
				httptest.NewRequest(http.MethodGet, "/reports", nil))

			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(rec.Header().Get("Location")).To(Equal("/"))
			Expect(reached).To(BeNil())
		})

		It("should admit a researcher", func() {
			ids.signIn(identity.RoleResearcher)

			rec := serve(g.RequireRole(next, identity.RoleAdmin, identity.RoleResearcher),
				httptest.NewRequest(http.MethodGet, "/reports", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(reached).NotTo(BeNil())
		})

		It("should send anonymous visitors to login, not home", func() {
			rec := serve(g.RequireRole(next, identity.RoleAdmin),
				httptest.NewRequest(http.MethodGet, "/reports", nil))

			Expect(rec.Header().Get("Location")).To(Equal("/login"))
		})
	})

	Describe("FromContext", func() {
		It("should report absence on a bare context", func() {
			_, ok := guard.FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
			Expect(ok).To(BeFalse())
		})
	})
})
