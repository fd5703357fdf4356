package telegram

import (
	"strings"

	"forumwatch-go/internal/model"
)

// markdownV2Special lists every character Telegram's MarkdownV2 requires to
// be escaped in ordinary text. The backslash itself comes first.
const markdownV2Special = "\\_*[]()~`>#+-=|{}.!"

const maxTitleRunes = 512

var (
	textEscaper = newEscaper(markdownV2Special)
	linkEscaper = newEscaper("\\)")
)

func newEscaper(chars string) *strings.Replacer {
	pairs := make([]string, 0, len(chars)*2)
	for _, c := range chars {
		pairs = append(pairs, string(c), "\\"+string(c))
	}
	return strings.NewReplacer(pairs...)
}

// EscapeMarkdownV2 prefixes every MarkdownV2 special character with a backslash.
func EscapeMarkdownV2(s string) string {
	return textEscaper.Replace(s)
}

// escapeLinkURL escapes the characters that would terminate an inline link target.
func escapeLinkURL(s string) string {
	return linkEscaper.Replace(s)
}

// FormatMessage renders the announcement for a newly listed topic.
func FormatMessage(site model.Site, topic model.Topic) string {
	var b strings.Builder
	b.WriteString("📢 *New Proposal*\n\n")
	b.WriteString("*Title:* ")
	b.WriteString(EscapeMarkdownV2(truncate(topic.Title, maxTitleRunes)))
	b.WriteString("\n")
	if site.Name != "" {
		b.WriteString("🏛 *Forum:* ")
		b.WriteString(EscapeMarkdownV2(site.Name))
		b.WriteString("\n")
	}
	b.WriteString("🔗 [Read More](")
	b.WriteString(escapeLinkURL(topic.Link))
	b.WriteString(")")
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
