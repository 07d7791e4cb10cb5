package chat_test

import (
	"time"

	"github.com/quillchat/quill/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Messages", func() {
	Describe("NewUserMessage", func() {
		It("should create a user message with trimmed content", func() {
			msg := chat.NewUserMessage("topic-1", "  Hello World  ")

			Expect(msg.Role).To(Equal(chat.RoleUser))
			Expect(msg.TopicID).To(Equal("topic-1"))
			Expect(msg.Content).To(Equal("Hello World"))
			Expect(msg.Status).To(Equal(chat.MessageSuccess))
			Expect(msg.ID).ToNot(BeEmpty())
			Expect(msg.CreatedAt).To(BeTemporally("~", time.Now(), time.Second))
		})
	})

	Describe("NewAssistantMessage", func() {
		It("should create a pending placeholder linked by askId", func() {
			msg := chat.NewAssistantMessage("topic-1", "ask-42")

			Expect(msg.Role).To(Equal(chat.RoleAssistant))
			Expect(msg.AskID).To(Equal("ask-42"))
			Expect(msg.Status).To(Equal(chat.MessagePending))
			Expect(msg.BlockIDs).To(BeEmpty())
		})
	})

	Describe("MessageStatus", func() {
		It("should treat pending and streaming as in flight", func() {
			Expect(chat.MessagePending.InFlight()).To(BeTrue())
			Expect(chat.MessageStreaming.InFlight()).To(BeTrue())
			Expect(chat.MessageSuccess.InFlight()).To(BeFalse())
			Expect(chat.MessagePaused.InFlight()).To(BeFalse())
			Expect(chat.MessageError.InFlight()).To(BeFalse())
		})

		It("should identify terminal statuses", func() {
			Expect(chat.MessageSuccess.Terminal()).To(BeTrue())
			Expect(chat.MessagePaused.Terminal()).To(BeTrue())
			Expect(chat.MessageError.Terminal()).To(BeTrue())
			Expect(chat.MessageStreaming.Terminal()).To(BeFalse())
			Expect(chat.MessagePending.Terminal()).To(BeFalse())
		})
	})

	Describe("HasBlock", func() {
		It("should report block membership", func() {
			msg := chat.NewAssistantMessage("topic-1", "ask-1")
			msg.BlockIDs = []string{"b1", "b2"}

			Expect(msg.HasBlock("b1")).To(BeTrue())
			Expect(msg.HasBlock("b3")).To(BeFalse())
		})
	})
})

var _ = Describe("Blocks", func() {
	Describe("NewBlock", func() {
		It("should start streaming with empty content", func() {
			b := chat.NewBlock("msg-1", chat.BlockThinking)

			Expect(b.MessageID).To(Equal("msg-1"))
			Expect(b.Kind).To(Equal(chat.BlockThinking))
			Expect(b.Status).To(Equal(chat.BlockStreaming))
			Expect(b.Content).To(BeEmpty())
			Expect(b.IsThinking()).To(BeTrue())
		})
	})

	Describe("NewTextBlock", func() {
		It("should create an already-complete text block", func() {
			b := chat.NewTextBlock("msg-1", "hi")

			Expect(b.Kind).To(Equal(chat.BlockText))
			Expect(b.Status).To(Equal(chat.BlockSuccess))
			Expect(b.Content).To(Equal("hi"))
		})
	})

	Describe("BlockStatus", func() {
		It("should identify terminal statuses", func() {
			Expect(chat.BlockStreaming.Terminal()).To(BeFalse())
			Expect(chat.BlockSuccess.Terminal()).To(BeTrue())
			Expect(chat.BlockPaused.Terminal()).To(BeTrue())
			Expect(chat.BlockError.Terminal()).To(BeTrue())
		})
	})
})

var _ = Describe("ComposeUserContent", func() {
	It("should merge reference first on the first turn", func() {
		got := chat.ComposeUserContent("translate this", "Hello, world!", true)
		Expect(got).To(Equal("Hello, world!\n\ntranslate this"))
	})

	It("should use the typed input unchanged when reference is empty", func() {
		got := chat.ComposeUserContent("translate this", "", true)
		Expect(got).To(Equal("translate this"))
	})

	It("should ignore the reference after the first turn", func() {
		got := chat.ComposeUserContent("next question", "Hello, world!", false)
		Expect(got).To(Equal("next question"))
	})

	It("should not duplicate a reference equal to the typed input", func() {
		got := chat.ComposeUserContent("same", "same", true)
		Expect(got).To(Equal("same"))
	})

	It("should fall back to the reference when nothing was typed", func() {
		got := chat.ComposeUserContent("   ", "Hello, world!", true)
		Expect(got).To(Equal("Hello, world!"))
	})

	It("should trim whitespace", func() {
		got := chat.ComposeUserContent("  translate this  ", "  Hello, world!  ", true)
		Expect(got).To(Equal("Hello, world!\n\ntranslate this"))
	})
})
