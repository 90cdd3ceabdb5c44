package internal

import (
	"regexp"
	"strings"
)

// ThreadKey clusters messages for the ORDEREDSUBJECT threading algorithm:
// messages sharing the same normalized subject belong to the same thread.
type ThreadKey struct {
	Subject string
}

var (
	subjectReplyRe   = regexp.MustCompile(`(?i)^(re|fwd?)\s*:\s*`)
	subjectListTagRe = regexp.MustCompile(`^\[[^\[\]]*\]\s*`)
	subjectSpacesRe  = regexp.MustCompile(`\s+`)
)

// NormalizeSubject strips reply/forward prefixes and mailing-list tags from
// a message subject, and collapses whitespace, so that unrelated messages
// with decorated subjects still cluster together.
func NormalizeSubject(subject string) string {
	for {
		trimmed := subjectReplyRe.ReplaceAllString(subject, "")
		trimmed = subjectListTagRe.ReplaceAllString(trimmed, "")
		if trimmed == subject {
			break
		}
		subject = trimmed
	}
	subject = subjectSpacesRe.ReplaceAllString(subject, " ")
	return strings.TrimSpace(subject)
}

// NewThreadKey builds the thread key for a message subject.
func NewThreadKey(subject string) ThreadKey {
	return ThreadKey{Subject: NormalizeSubject(subject)}
}
