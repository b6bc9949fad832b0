package guard_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrispy.dev/agrispy/internal/guard"
	"agrispy.dev/agrispy/internal/identity"
)

var _ = Describe("Evaluate", func() {
	farmer := identity.Identity{ID: "1", Role: identity.RoleFarmer}
	admin := identity.Identity{ID: "2", Role: identity.RoleAdmin}
	researcher := identity.Identity{ID: "3", Role: identity.RoleResearcher}
	reportRoles := []identity.Role{identity.RoleAdmin, identity.RoleResearcher}

	DescribeTable("authenticated-only routes",
		func(id identity.Identity, ok, loading bool, expected guard.Decision) {
			Expect(guard.Evaluate(id, ok, loading)).To(Equal(expected))
		},
		Entry("anonymous", identity.Identity{}, false, false, guard.RedirectLogin),
		Entry("anonymous while loading", identity.Identity{}, false, true, guard.Pending),
		Entry("signed in", farmer, true, false, guard.Allow),
		Entry("signed in while loading", farmer, true, true, guard.Pending),
	)

	DescribeTable("role-restricted routes",
		func(id identity.Identity, ok bool, expected guard.Decision) {
			Expect(guard.Evaluate(id, ok, false, reportRoles...)).To(Equal(expected))
		},
		Entry("farmer is sent home", farmer, true, guard.RedirectHome),
		Entry("admin is allowed", admin, true, guard.Allow),
		Entry("researcher is allowed", researcher, true, guard.Allow),
		Entry("anonymous is sent to login", identity.Identity{}, false, guard.RedirectLogin),
	)

	It("should keep the two redirects distinct", func() {
		Expect(guard.RedirectLogin.Location()).To(Equal("/login"))
		Expect(guard.RedirectHome.Location()).To(Equal("/"))
		Expect(guard.Allow.Location()).To(BeEmpty())
		Expect(guard.Pending.Location()).To(BeEmpty())
	})

	It("should name decisions for metrics", func() {
		Expect(guard.RedirectHome.String()).To(Equal("redirect_home"))
		Expect(guard.Decision(42).String()).To(Equal("unknown"))
	})
})
