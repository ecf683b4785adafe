package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var (
	mdV1Re = regexp.MustCompile("([_*`\\[])")
	mdV2Re = regexp.MustCompile("([" + regexp.QuoteMeta(mdV2Specials) + "])")

	linkURLReplacer = strings.NewReplacer(`\`, `\\`, `)`, `\)`)
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\${1}`), nil
	case MarkdownV2:
		return mdV2Re.ReplaceAllString(text, `\${1}`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// EscapeLinkURL escapes the URL part of a MarkdownV2 inline link, where only
// ')' and '\' are special.
func EscapeLinkURL(url string) string {
	return linkURLReplacer.Replace(url)
}

// LinkV2 renders a MarkdownV2 inline link with an escaped label and URL.
func LinkV2(label, url string) string {
	escaped, _ := EscapeMarkdown(label, MarkdownV2)
	return "[" + escaped + "](" + EscapeLinkURL(url) + ")"
}
