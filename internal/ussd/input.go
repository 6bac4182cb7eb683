package ussd

import "strings"

// Separator joins successive user submissions in the gateway's cumulative text field.
const Separator = "*"

// Segments splits the cumulative dialog text into individual submissions. Empty text has none.
func Segments(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, Separator)
}

// LastSegment returns the most recent submission, which is the current input of every state.
func LastSegment(text string) string {
	if i := strings.LastIndex(text, Separator); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return strings.TrimSpace(text)
}
