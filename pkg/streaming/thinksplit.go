package streaming

import (
	"strings"
	"time"
)

var (
	thinkOpenTags  = []string{"<think>", "<thinking>"}
	thinkCloseTags = []string{"</think>", "</thinking>"}
)

// thinkSplitter turns a raw token stream into typed chunks, separating a
// leading <think>…</think> region (or a native thinking field) from the
// answer text. Tags may straddle chunk boundaries, so a partial tag
// candidate is carried between feeds.
//
// Only the first thinking region is treated as reasoning; once it closes,
// any later tags pass through as literal answer text.
type thinkSplitter struct {
	emit func(Chunk)

	carry        string
	thinkingOpen bool
	thinkingDone bool
	native       bool // thinking arrived in a dedicated field, no close tag
	thinkStart   time.Time
	textStarted  bool
	text         strings.Builder
}

func newThinkSplitter(emit func(Chunk)) *thinkSplitter {
	return &thinkSplitter{emit: emit}
}

// FeedThinking delivers reasoning content that arrived in a dedicated
// thinking field, bypassing tag scanning.
func (sp *thinkSplitter) FeedThinking(s string) {
	if sp.thinkingDone {
		return
	}
	sp.native = true
	sp.openThinking()
	sp.thinkingDelta(s)
}

// Feed delivers answer-channel content, splitting out inline think tags.
func (sp *thinkSplitter) Feed(s string) {
	// Answer content starting means a native thinking phase is over; no
	// close tag will ever arrive for it.
	if sp.thinkingOpen && sp.native {
		sp.closeThinking()
	}

	sp.carry += s
	for sp.carry != "" {
		if sp.thinkingOpen {
			idx, tag := earliestTag(sp.carry, thinkCloseTags)
			if idx >= 0 {
				sp.thinkingDelta(sp.carry[:idx])
				sp.closeThinking()
				sp.carry = sp.carry[idx+len(tag):]
				continue
			}
			hold := partialTagSuffix(sp.carry, thinkCloseTags)
			sp.thinkingDelta(sp.carry[:len(sp.carry)-hold])
			sp.carry = sp.carry[len(sp.carry)-hold:]
			return
		}

		if sp.thinkingDone {
			sp.textDelta(sp.carry)
			sp.carry = ""
			return
		}

		idx, tag := earliestTag(sp.carry, thinkOpenTags)
		if idx >= 0 {
			sp.textDelta(sp.carry[:idx])
			sp.openThinking()
			sp.carry = sp.carry[idx+len(tag):]
			continue
		}
		hold := partialTagSuffix(sp.carry, thinkOpenTags)
		sp.textDelta(sp.carry[:len(sp.carry)-hold])
		sp.carry = sp.carry[len(sp.carry)-hold:]
		return
	}
}

// Finish flushes held state at end of stream: a dangling partial tag becomes
// literal content, an unclosed thinking region is completed, and the final
// accumulated text is emitted as the authoritative snapshot.
func (sp *thinkSplitter) Finish() {
	if sp.carry != "" {
		if sp.thinkingOpen {
			sp.thinkingDelta(sp.carry)
		} else {
			sp.textDelta(sp.carry)
		}
		sp.carry = ""
	}
	if sp.thinkingOpen {
		sp.closeThinking()
	}
	if sp.textStarted {
		sp.emit(Chunk{Kind: TextComplete, Text: strings.TrimSpace(sp.text.String())})
	}
}

func (sp *thinkSplitter) openThinking() {
	if sp.thinkingOpen || sp.thinkingDone {
		return
	}
	sp.thinkingOpen = true
	sp.thinkStart = time.Now()
	sp.emit(Chunk{Kind: ThinkingStart})
}

func (sp *thinkSplitter) closeThinking() {
	if !sp.thinkingOpen {
		return
	}
	sp.thinkingOpen = false
	sp.thinkingDone = true
	sp.emit(Chunk{Kind: ThinkingComplete, ElapsedMS: sp.elapsedMS()})
}

func (sp *thinkSplitter) thinkingDelta(s string) {
	if s == "" {
		return
	}
	sp.emit(Chunk{Kind: ThinkingDelta, Text: s, ElapsedMS: sp.elapsedMS()})
}

func (sp *thinkSplitter) textDelta(s string) {
	if !sp.textStarted {
		// Models often pad the boundary between thinking and answer.
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			return
		}
		sp.textStarted = true
		sp.emit(Chunk{Kind: TextStart})
	}
	sp.text.WriteString(s)
	sp.emit(Chunk{Kind: TextDelta, Text: s})
}

func (sp *thinkSplitter) elapsedMS() int64 {
	return time.Since(sp.thinkStart).Milliseconds()
}

// earliestTag returns the position and value of the first occurrence of any
// tag in s, or -1.
func earliestTag(s string, tags []string) (int, string) {
	best, bestTag := -1, ""
	for _, tag := range tags {
		if idx := strings.Index(s, tag); idx >= 0 && (best == -1 || idx < best) {
			best, bestTag = idx, tag
		}
	}
	return best, bestTag
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of any tag, i.e. content that must be held back because the
// rest of the tag may arrive in the next chunk.
func partialTagSuffix(s string, tags []string) int {
	max := 0
	for _, tag := range tags {
		for n := len(tag) - 1; n > 0; n-- {
			if n > len(s) {
				continue
			}
			if strings.HasSuffix(s, tag[:n]) && n > max {
				max = n
			}
		}
	}
	return max
}
