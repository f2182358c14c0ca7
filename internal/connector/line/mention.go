package line

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

type span struct {
	index  int
	length int
}

// selfMentions returns the spans where the bot itself is mentioned.
func selfMentions(m *webhook.Mention) []span {
	if m == nil {
		return nil
	}
	var spans []span
	for _, mentionee := range m.Mentionees {
		if u, ok := mentionee.(webhook.UserMentionee); ok && u.IsSelf {
			spans = append(spans, span{index: int(u.Index), length: int(u.Length)})
		}
	}
	return spans
}

// addressedText reports whether a text message is addressed to the bot and
// returns it without the bot mentions. In personal chats every message is
// addressed; in groups and rooms only messages mentioning the bot are.
func addressedText(source webhook.SourceInterface, msg webhook.TextMessageContent) (string, bool) {
	spans := selfMentions(msg.Mention)
	if !isPersonalChat(source) && len(spans) == 0 {
		return "", false
	}
	return stripSpans(msg.Text, spans), true
}

// stripSpans removes spans from text. LINE indexes are rune offsets.
func stripSpans(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	slices.SortFunc(spans, func(a, b span) int { return b.index - a.index })

	runes := []rune(text)
	for _, s := range spans {
		start := max(s.index, 0)
		end := min(s.index+s.length, len(runes))
		if start >= end {
			continue
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}
