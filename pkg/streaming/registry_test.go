package streaming_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillchat/quill/pkg/streaming"
)

var _ = Describe("Registry", func() {
	var registry *streaming.Registry

	BeforeEach(func() {
		registry = streaming.NewRegistry()
	})

	It("should cancel the registered context", func() {
		ctx := registry.Register(context.Background(), "ask-1")
		Expect(ctx.Err()).To(BeNil())

		registry.Cancel("ask-1")
		Expect(ctx.Err()).To(MatchError(context.Canceled))
	})

	It("should scope cancellation to one ask", func() {
		first := registry.Register(context.Background(), "ask-1")
		second := registry.Register(context.Background(), "ask-2")

		registry.Cancel("ask-1")
		Expect(first.Err()).To(MatchError(context.Canceled))
		Expect(second.Err()).To(BeNil())

		registry.Cancel("ask-2")
	})

	It("should ignore unknown ids", func() {
		registry.Cancel("never-registered")
	})

	It("should not trigger work twice for cancel after remove", func() {
		ctx := registry.Register(context.Background(), "ask-1")
		registry.Remove("ask-1")
		registry.Cancel("ask-1")
		Expect(ctx.Err()).To(MatchError(context.Canceled))
	})
})
