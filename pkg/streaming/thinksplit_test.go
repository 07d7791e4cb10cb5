package streaming

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("thinkSplitter", func() {
	split := func(pieces ...string) []Chunk {
		var chunks []Chunk
		sp := newThinkSplitter(func(c Chunk) { chunks = append(chunks, c) })
		for _, p := range pieces {
			sp.Feed(p)
		}
		sp.Finish()
		return chunks
	}

	kinds := func(chunks []Chunk) []ChunkKind {
		out := make([]ChunkKind, len(chunks))
		for i, c := range chunks {
			out[i] = c.Kind
		}
		return out
	}

	gather := func(chunks []Chunk) (thinking, text string) {
		for _, c := range chunks {
			switch c.Kind {
			case ThinkingDelta:
				thinking += c.Text
			case TextDelta:
				text += c.Text
			}
		}
		return
	}

	It("should pass plain text through with a final snapshot", func() {
		chunks := split("Hi", " there")

		Expect(kinds(chunks)).To(Equal([]ChunkKind{
			TextStart, TextDelta, TextDelta, TextComplete,
		}))
		Expect(chunks[3].Text).To(Equal("Hi there"))
	})

	It("should split a leading think region into thinking chunks", func() {
		chunks := split("<think>pondering</think>answer")

		Expect(kinds(chunks)).To(Equal([]ChunkKind{
			ThinkingStart, ThinkingDelta, ThinkingComplete,
			TextStart, TextDelta, TextComplete,
		}))
		Expect(chunks[1].Text).To(Equal("pondering"))
		Expect(chunks[5].Text).To(Equal("answer"))
	})

	It("should handle tags straddling chunk boundaries", func() {
		chunks := split("<thi", "nk>deep", " thought</th", "ink>an", "swer")

		thinking, text := gather(chunks)
		Expect(thinking).To(Equal("deep thought"))
		Expect(text).To(Equal("answer"))
	})

	It("should support the long tag form", func() {
		chunks := split("<thinking>hmm</thinking>ok")

		Expect(kinds(chunks)).To(ContainElements(ThinkingStart, ThinkingComplete))
		Expect(chunks[len(chunks)-1].Text).To(Equal("ok"))
	})

	It("should complete an unclosed think region at end of stream", func() {
		chunks := split("<think>never closed")

		Expect(kinds(chunks)).To(Equal([]ChunkKind{
			ThinkingStart, ThinkingDelta, ThinkingComplete,
		}))
	})

	It("should flush a dangling partial tag as literal content", func() {
		chunks := split("trailing <thi")

		_, text := gather(chunks)
		Expect(text).To(Equal("trailing <thi"))
	})

	It("should treat tags after the first region as literal text", func() {
		chunks := split("<think>a</think>one <think>two</think>")

		_, text := gather(chunks)
		Expect(text).To(Equal("one <think>two</think>"))
	})

	It("should trim the boundary padding between thinking and answer", func() {
		chunks := split("<think>a</think>\n\nanswer")

		for _, c := range chunks {
			if c.Kind == TextComplete {
				Expect(c.Text).To(Equal("answer"))
			}
		}
	})

	It("should close a native thinking phase when answer content arrives", func() {
		var chunks []Chunk
		sp := newThinkSplitter(func(c Chunk) { chunks = append(chunks, c) })
		sp.FeedThinking("first ")
		sp.FeedThinking("second")
		sp.Feed("the answer")
		sp.Finish()

		thinking, text := gather(chunks)
		Expect(thinking).To(Equal("first second"))
		Expect(text).To(Equal("the answer"))
		Expect(kinds(chunks)).To(Equal([]ChunkKind{
			ThinkingStart, ThinkingDelta, ThinkingDelta, ThinkingComplete,
			TextStart, TextDelta, TextComplete,
		}))
	})

	It("should ignore thinking content after the region closed", func() {
		var chunks []Chunk
		sp := newThinkSplitter(func(c Chunk) { chunks = append(chunks, c) })
		sp.FeedThinking("a")
		sp.Feed("answer")
		sp.FeedThinking("late")
		sp.Finish()

		thinking, _ := gather(chunks)
		Expect(thinking).To(Equal("a"))
	})
})
