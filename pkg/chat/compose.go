package chat

import "strings"

// ComposeUserContent builds the effective user content for a turn.
//
// On the first turn of a session, an externally supplied reference payload
// (if present and different from the typed input) is concatenated
// reference-first, separated by a blank line. On every other turn the typed
// input is used verbatim. The result is whitespace-trimmed either way.
func ComposeUserContent(typed, reference string, firstTurn bool) string {
	typed = strings.TrimSpace(typed)
	reference = strings.TrimSpace(reference)

	if !firstTurn || reference == "" || reference == typed {
		return typed
	}
	if typed == "" {
		return reference
	}
	return reference + "\n\n" + typed
}
