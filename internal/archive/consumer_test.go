package archive_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrispy.dev/agrispy/internal/archive"
	"agrispy.dev/agrispy/internal/telemetry"
	"agrispy.dev/agrispy/pkg/logger"
	"agrispy.dev/agrispy/pkg/mq"
	"agrispy.dev/agrispy/pkg/mq/mock"
)

var _ = Describe("Consumer", func() {
	var (
		repo   *memoryRepository
		client *mock.Client
	)

	BeforeEach(func() {
		repo = &memoryRepository{}
		client = mock.NewClient()
	})

	newConsumer := func() *archive.Consumer {
		c, err := archive.NewConsumer(&archive.ConsumerConfig{
			Logger:       logger.Discard(),
			Repository:   repo,
			Client:       client,
			StartTimeout: time.Second,
			RequeueDelay: 20 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	Describe("NewConsumer", func() {
		It("should reject a nil config", func() {
			_, err := archive.NewConsumer(nil)
			Expect(err).To(MatchError("consumer config cannot be nil"))
		})

		It("should reject a nil logger", func() {
			_, err := archive.NewConsumer(&archive.ConsumerConfig{Repository: repo, Client: client})
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("should reject a nil repository", func() {
			_, err := archive.NewConsumer(&archive.ConsumerConfig{Logger: logger.Discard(), Client: client})
			Expect(err).To(MatchError("repository cannot be nil"))
		})

		It("should reject a nil client", func() {
			_, err := archive.NewConsumer(&archive.ConsumerConfig{Logger: logger.Discard(), Repository: repo})
			Expect(err).To(MatchError("mq client cannot be nil"))
		})
	})

	Describe("processing deliveries", func() {
		var (
			consumer *archive.Consumer
			ack      *mock.Acknowledger
		)

		BeforeEach(func() {
			ack = &mock.Acknowledger{}
			consumer = newConsumer()
			Expect(consumer.Start(context.Background())).To(Succeed())
			DeferCleanup(func() { Expect(consumer.Stop()).To(Succeed()) })
		})

		It("should store a reading and ack it", func() {
			at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
			body, err := telemetry.Encode(sampleMessage(at))
			Expect(err).NotTo(HaveOccurred())

			client.Deliveries <- mock.Delivery(ack, 1, body)

			Eventually(func() int {
				acks, _ := ack.Counts()
				return acks
			}).Should(Equal(1))

			saved := repo.saved()
			Expect(saved).To(HaveLen(1))
			Expect(saved[0].Source).To(Equal("field-7"))
			Expect(saved[0].Timestamp).To(BeTemporally("==", at))
			Expect(saved[0].GasLevel).To(Equal(118.0))
		})

		It("should ack and drop an undecodable payload", func() {
			client.Deliveries <- mock.Delivery(ack, 2, []byte("not protobuf"))

			Eventually(func() int {
				acks, _ := ack.Counts()
				return acks
			}).Should(Equal(1))
			Expect(repo.saved()).To(BeEmpty())
		})

		It("should requeue a reading the repository failed to store", func() {
			repo.mu.Lock()
			repo.saveErr = errors.New("connection reset")
			repo.mu.Unlock()

			body, err := telemetry.Encode(sampleMessage(time.Now()))
			Expect(err).NotTo(HaveOccurred())
			client.Deliveries <- mock.Delivery(ack, 3, body)

			Eventually(func() int {
				_, nacks := ack.Counts()
				return nacks
			}).Should(Equal(1))

			acks, _ := ack.Counts()
			Expect(acks).To(BeZero())
			Expect(ack.Requeue).To(Equal([]bool{true}))
		})

		It("should resubscribe when the deliveries channel closes", func() {
			old := client.SwapDeliveries()
			close(old)

			Eventually(client.ConsumeCalls).Should(Equal(2))

			body, err := telemetry.Encode(sampleMessage(time.Now()))
			Expect(err).NotTo(HaveOccurred())
			client.Deliveries <- mock.Delivery(ack, 4, body)

			Eventually(func() int { return len(repo.saved()) }).Should(Equal(1))
			acks, _ := ack.Counts()
			Expect(acks).To(Equal(1))
		})

		It("should keep trying to resubscribe while the client reconnects", func() {
			old := client.SwapDeliveries()
			client.ConsumeError = mq.ErrNotConnected
			close(old)

			Eventually(client.ConsumeCalls, 2*time.Second).Should(BeNumerically(">=", 3))
		})
	})

	Describe("requeue delay", func() {
		var ack *mock.Acknowledger

		BeforeEach(func() {
			ack = &mock.Acknowledger{}
			repo.saveErr = errors.New("database is down")
		})

		nacks := func() int {
			_, n := ack.Counts()
			return n
		}

		It("should wait before handing a failed reading back", func() {
			consumer, err := archive.NewConsumer(&archive.ConsumerConfig{
				Logger:       logger.Discard(),
				Repository:   repo,
				Client:       client,
				RequeueDelay: 300 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(consumer.Start(context.Background())).To(Succeed())
			DeferCleanup(consumer.Stop)

			body, err := telemetry.Encode(sampleMessage(time.Now()))
			Expect(err).NotTo(HaveOccurred())
			client.Deliveries <- mock.Delivery(ack, 5, body)

			Eventually(repo.attempts).Should(Equal(1))
			Consistently(nacks, 150*time.Millisecond).Should(BeZero())
			Eventually(nacks).Should(Equal(1))
		})

		It("should requeue at once when stopped during the wait", func() {
			consumer, err := archive.NewConsumer(&archive.ConsumerConfig{
				Logger:       logger.Discard(),
				Repository:   repo,
				Client:       client,
				RequeueDelay: time.Minute,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(consumer.Start(context.Background())).To(Succeed())

			body, err := telemetry.Encode(sampleMessage(time.Now()))
			Expect(err).NotTo(HaveOccurred())
			client.Deliveries <- mock.Delivery(ack, 6, body)
			Eventually(repo.attempts).Should(Equal(1))

			start := time.Now()
			Expect(consumer.Stop()).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			Expect(nacks()).To(Equal(1))
			Expect(ack.Requeue).To(Equal([]bool{true}))
		})
	})

	Describe("Start", func() {
		It("should fail on a consume error other than not connected", func() {
			client.ConsumeError = errors.New("access refused")
			consumer := newConsumer()

			Expect(consumer.Start(context.Background())).To(MatchError(ContainSubstring("access refused")))
			Expect(client.ConsumeCalls()).To(Equal(1))
		})

		It("should keep retrying while the client is not connected", func() {
			client.ConsumeError = mq.ErrNotConnected
			consumer := newConsumer()

			start := time.Now()
			err := consumer.Start(context.Background())
			Expect(err).To(MatchError(mq.ErrNotConnected))
			Expect(time.Since(start)).To(BeNumerically(">=", 900*time.Millisecond))
			Expect(client.ConsumeCalls()).To(BeNumerically(">", 1))
		})

		It("should give up when the context ends", func() {
			client.ConsumeError = mq.ErrNotConnected
			consumer := newConsumer()

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			Expect(consumer.Start(ctx)).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("Stop", func() {
		It("should close the client even if never started", func() {
			consumer := newConsumer()

			Expect(consumer.Stop()).To(Succeed())
			Expect(client.CloseCalls()).To(Equal(1))
		})

		It("should surface a close error", func() {
			client.CloseError = errors.New("channel already closed")
			consumer := newConsumer()

			Expect(consumer.Stop()).To(MatchError(ContainSubstring("channel already closed")))
		})

		It("should refuse to start once stopped", func() {
			consumer := newConsumer()
			Expect(consumer.Stop()).To(Succeed())

			Expect(consumer.Start(context.Background())).To(MatchError(mq.ErrClosed))
		})
	})
})
