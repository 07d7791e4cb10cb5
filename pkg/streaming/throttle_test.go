package streaming_test

import (
	"sync"
	"time"

	"github.com/quillchat/quill/pkg/streaming"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// writeLog records applied writes in order, standing in for the store.
type writeLog struct {
	mu     sync.Mutex
	values []string
}

func (w *writeLog) apply(v string) func() {
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.values = append(w.values, v)
	}
}

func (w *writeLog) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.values))
	copy(out, w.values)
	return out
}

var _ = Describe("Throttler", func() {
	var (
		throttler *streaming.Throttler
		log       *writeLog
	)

	BeforeEach(func() {
		throttler = streaming.NewThrottler(20 * time.Millisecond)
		log = &writeLog{}
	})

	It("should apply the first write immediately", func() {
		throttler.Schedule("b1", log.apply("v1"))
		Expect(log.snapshot()).To(Equal([]string{"v1"}))
	})

	It("should coalesce writes within the interval, keeping the latest", func() {
		throttler.Schedule("b1", log.apply("v1"))
		throttler.Schedule("b1", log.apply("v2"))
		throttler.Schedule("b1", log.apply("v3"))

		Expect(log.snapshot()).To(Equal([]string{"v1"}))
		Eventually(log.snapshot, "500ms", "5ms").Should(Equal([]string{"v1", "v3"}))
	})

	It("should preserve delta order: later schedules never apply before earlier ones", func() {
		throttler.Schedule("b1", log.apply("t1"))
		throttler.Schedule("b1", log.apply("t2"))
		throttler.Flush("b1")

		Expect(log.snapshot()).To(Equal([]string{"t1", "t2"}))
	})

	It("should not rate-limit distinct blocks against each other", func() {
		throttler.Schedule("b1", log.apply("a"))
		throttler.Schedule("b2", log.apply("b"))
		Expect(log.snapshot()).To(Equal([]string{"a", "b"}))
	})

	Describe("Flush", func() {
		It("should apply the pending write immediately", func() {
			throttler.Schedule("b1", log.apply("v1"))
			throttler.Schedule("b1", log.apply("v2"))
			throttler.Flush("b1")

			Expect(log.snapshot()).To(Equal([]string{"v1", "v2"}))
		})

		It("should be a no-op on an already-flushed block", func() {
			throttler.Schedule("b1", log.apply("v1"))
			throttler.Flush("b1")
			throttler.Flush("b1")

			Expect(log.snapshot()).To(Equal([]string{"v1"}))
		})

		It("should be a no-op on an unknown block", func() {
			Expect(func() { throttler.Flush("nope") }).ToNot(Panic())
			Expect(log.snapshot()).To(BeEmpty())
		})
	})

	Describe("Cancel", func() {
		It("should discard the pending write without applying it", func() {
			throttler.Schedule("b1", log.apply("v1"))
			throttler.Schedule("b1", log.apply("v2"))
			throttler.Cancel("b1")

			Consistently(log.snapshot, "100ms", "10ms").Should(Equal([]string{"v1"}))
		})

		It("should guarantee nothing stale lands once it returns", func() {
			// Races Cancel against the timer firing at the window edge: a
			// coalesced partial write must never land after the cancel and
			// the authoritative write that follows it.
			for i := 0; i < 500; i++ {
				fast := streaming.NewThrottler(time.Millisecond)
				var mu sync.Mutex
				content := ""
				write := func(v string) func() {
					return func() {
						mu.Lock()
						content = v
						mu.Unlock()
					}
				}

				fast.Schedule("b1", write("partial-1"))
				fast.Schedule("b1", write("partial-2"))
				time.Sleep(time.Millisecond)
				fast.Cancel("b1")
				write("final")()

				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				got := content
				mu.Unlock()
				Expect(got).To(Equal("final"))
			}
		})
	})
})
