package archive_test

import (
	"context"
	"errors"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"agrispy.dev/agrispy/internal/archive"
	"agrispy.dev/agrispy/pkg/logger"
	"agrispy.dev/agrispy/pkg/metrics"
)

var _ = Describe("Service", func() {
	var repo *memoryRepository

	BeforeEach(func() {
		repo = &memoryRepository{}
	})

	seed := func(n int) time.Time {
		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		for i := range n {
			r := archive.NewArchivedReading(sampleMessage(base.Add(time.Duration(i) * time.Hour)))
			Expect(repo.Save(context.Background(), &r)).To(Succeed())
		}
		return base
	}

	Describe("NewService", func() {
		It("should reject a nil logger", func() {
			_, err := archive.NewService(nil, repo, nil)
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("should reject a nil repository", func() {
			_, err := archive.NewService(logger.Discard(), nil, nil)
			Expect(err).To(MatchError("repository cannot be nil"))
		})
	})

	Describe("RecentReadings", func() {
		var service *archive.Service

		BeforeEach(func() {
			var err error
			service, err = archive.NewService(logger.Discard(), repo, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		request := func(fields map[string]any) *structpb.Struct {
			st, err := structpb.NewStruct(fields)
			Expect(err).NotTo(HaveOccurred())
			return st
		}

		It("should use the default limit when none is given", func() {
			seed(30)

			out, err := service.RecentReadings(context.Background(), request(nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.GetValues()).To(HaveLen(archive.DefaultRecentLimit))
			Expect(repo.requestedLimits()).To(Equal([]int{archive.DefaultRecentLimit}))
		})

		It("should return readings newest first with their ids", func() {
			base := seed(3)

			out, err := service.RecentReadings(context.Background(), request(map[string]any{"limit": 2}))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.GetValues()).To(HaveLen(2))

			first, err := archive.DecodeRecord(out.GetValues()[0].GetStructValue())
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).To(Equal(uint(3)))
			Expect(first.Timestamp).To(BeTemporally("==", base.Add(2*time.Hour)))
			Expect(first.Source).To(Equal("field-7"))
		})

		It("should cap oversized limits", func() {
			_, err := service.RecentReadings(context.Background(), request(map[string]any{"limit": 10000}))
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.requestedLimits()).To(Equal([]int{archive.MaxRecentLimit}))
		})

		DescribeTable("should reject invalid limits",
			func(limit any) {
				_, err := service.RecentReadings(context.Background(), request(map[string]any{"limit": limit}))
				Expect(status.Code(err)).To(Equal(codes.InvalidArgument))
				Expect(repo.requestedLimits()).To(BeEmpty())
			},
			Entry("string", "ten"),
			Entry("negative", -1),
			Entry("fraction", 2.5),
			Entry("bool", true),
		)

		It("should map repository failures to Internal", func() {
			repo.listErr = errors.New("relation does not exist")

			_, err := service.RecentReadings(context.Background(), request(nil))
			Expect(status.Code(err)).To(Equal(codes.Internal))
		})

		It("should count requests when metrics are set", func() {
			m := metrics.NewArchiveMetrics("archive_service_test")
			withMetrics, err := archive.NewService(logger.Discard(), repo, m)
			Expect(err).NotTo(HaveOccurred())

			_, err = withMetrics.RecentReadings(context.Background(), request(nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = withMetrics.RecentReadings(context.Background(), request(map[string]any{"limit": "x"}))
			Expect(err).To(HaveOccurred())

			Expect(counterValue("archive_service_test_grpc_requests_total", "status", "success")).To(Equal(1.0))
			Expect(counterValue("archive_service_test_grpc_requests_total", "status", "invalid_argument")).To(Equal(1.0))
		})
	})

	Describe("over gRPC", func() {
		var client *archive.Client

		BeforeEach(func() {
			lis := bufconn.Listen(1 << 20)
			server := grpc.NewServer()
			service, err := archive.NewService(logger.Discard(), repo, nil)
			Expect(err).NotTo(HaveOccurred())
			archive.RegisterArchiveServer(server, service)

			go func() { _ = server.Serve(lis) }()
			DeferCleanup(server.Stop)

			client, err = archive.Dial("passthrough:///bufnet",
				grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
					return lis.DialContext(ctx)
				}),
			)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(client.Close)
		})

		It("should round-trip readings through the client", func() {
			base := seed(5)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			readings, err := client.RecentReadings(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(3))
			Expect(readings[0].ID).To(Equal(uint(5)))
			Expect(readings[0].Timestamp).To(BeTemporally("==", base.Add(4*time.Hour)))
			Expect(readings[2].ID).To(Equal(uint(3)))
			Expect(readings[0].Temperature).To(Equal(24.3))
		})

		It("should return an empty history for an empty archive", func() {
			readings, err := client.RecentReadings(context.Background(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(BeEmpty())
		})

		It("should surface server errors with their status code", func() {
			repo.listErr = errors.New("boom")

			_, err := client.RecentReadings(context.Background(), 10)
			Expect(status.Code(err)).To(Equal(codes.Internal))
		})
	})

	Describe("Dial", func() {
		It("should reject an empty target", func() {
			_, err := archive.Dial("")
			Expect(err).To(MatchError("archive address cannot be empty"))
		})

		It("should not close a connection it does not own", func() {
			Expect(archive.NewClient(nil).Close()).To(Succeed())
		})
	})

	Describe("ClampLimit", func() {
		DescribeTable("should keep limits in range",
			func(in, expected int) {
				Expect(archive.ClampLimit(in)).To(Equal(expected))
			},
			Entry("zero", 0, archive.DefaultRecentLimit),
			Entry("negative", -5, archive.DefaultRecentLimit),
			Entry("in range", 7, 7),
			Entry("maximum", archive.MaxRecentLimit, archive.MaxRecentLimit),
			Entry("too large", archive.MaxRecentLimit+1, archive.MaxRecentLimit),
		)
	})
})

// counterValue reads a counter from the shared registry.
func counterValue(name, label, value string) float64 {
	families, err := metrics.Registry.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
