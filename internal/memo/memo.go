// Package memo encodes and decodes the value-for-value transfer memo tags.
//
// Wire format:
//
//	V4V_STREAM:<contentId>:<contentTitle>
//	V4V_BOOST:<contentId>:<message>
//
// Only the first two separators are structural. Everything after the content
// id belongs to the free-text field and may contain further colons.
package memo

import (
	"strings"
)

const (
	StreamPrefix = "V4V_STREAM:"
	BoostPrefix  = "V4V_BOOST:"

	defaultTitle     = "Content"
	MaxMessageLength = 100
)

// Kind classifies a memo.
type Kind int

const (
	KindUntagged Kind = iota
	KindStream
	KindBoost
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindBoost:
		return "boost"
	default:
		return "untagged"
	}
}

// Tag is a decoded memo. Partial is set when the memo carried a known prefix
// but lacked the content-id separator; such memos still count by kind.
type Tag struct {
	Kind      Kind
	ContentID string
	Text      string
	Partial   bool
}

// EncodeStream builds a streaming memo. An empty title becomes "Content".
func EncodeStream(contentID, title string) string {
	if title == "" {
		title = defaultTitle
	}
	return StreamPrefix + contentID + ":" + title
}

// EncodeBoost builds a boost memo, truncating message to MaxMessageLength characters.
func EncodeBoost(contentID, message string) string {
	return BoostPrefix + contentID + ":" + TruncateMessage(message)
}

// TruncateMessage cuts s to MaxMessageLength runes.
func TruncateMessage(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxMessageLength {
		return s
	}
	return string(runes[:MaxMessageLength])
}

// Decode classifies a memo and splits out its fields.
func Decode(m string) Tag {
	var (
		kind Kind
		rest string
		ok   bool
	)
	if rest, ok = strings.CutPrefix(m, StreamPrefix); ok {
		kind = KindStream
	} else if rest, ok = strings.CutPrefix(m, BoostPrefix); ok {
		kind = KindBoost
	} else {
		return Tag{Kind: KindUntagged, Text: m}
	}

	contentID, text, found := strings.Cut(rest, ":")
	if !found {
		return Tag{Kind: kind, ContentID: rest, Partial: true}
	}
	return Tag{Kind: kind, ContentID: contentID, Text: text}
}

// FormatBoostMessage strips the boost prefix and content id for display.
// Memos that are not complete boost memos are returned unchanged.
func FormatBoostMessage(m string) string {
	tag := Decode(m)
	if tag.Kind != KindBoost || tag.Partial {
		return m
	}
	return tag.Text
}
