// Package format turns the small Markdown subset used in bot messages into
// Telegram message entities, so user-supplied titles never need escaping.
package format

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Rendered is plain text plus the entities that style it.
type Rendered struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

// UTF16Len is the length of s in UTF-16 code units, the unit Telegram uses
// for entity offsets.
func UTF16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

var markers = []struct {
	open, close string
	entity      string
}{
	{"**", "**", "bold"},
	{"`", "`", "code"},
}

// Markdown renders **bold** and `code` spans. Unterminated markers are kept
// as literal text.
func Markdown(text string) Rendered {
	var (
		out      strings.Builder
		entities []tgbotapi.MessageEntity
		offset   int
	)

	for len(text) > 0 {
		matched := false
		for _, m := range markers {
			if !strings.HasPrefix(text, m.open) {
				continue
			}
			rest := text[len(m.open):]
			end := strings.Index(rest, m.close)
			if end <= 0 {
				continue
			}
			inner := rest[:end]
			n := UTF16Len(inner)
			entities = append(entities, tgbotapi.MessageEntity{Type: m.entity, Offset: offset, Length: n})
			out.WriteString(inner)
			offset += n
			text = rest[end+len(m.close):]
			matched = true
			break
		}
		if matched {
			continue
		}

		r, size := utf8.DecodeRuneInString(text)
		out.WriteString(text[:size])
		offset += UTF16Len(string(r))
		text = text[size:]
	}

	return Rendered{
		Text:     strings.TrimRight(out.String(), " \n"),
		Entities: entities,
	}
}
