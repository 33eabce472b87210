package workflow

import "strings"

// CountryPrefix is prepended to normalized phone numbers that don't already
// carry it. The deployments this system targets are Brazilian WhatsApp
// numbers.
const CountryPrefix = "55"

// NormalizePhone canonicalizes a phone identifier for use as a conversation
// key: anything after an "@" separator is dropped (channel JIDs carry a
// domain suffix), non-digits are stripped, leading zeros removed, and the
// country prefix added when missing.
//
// The same transformation exists a second time as PhoneExpression, baked into
// the workflow graph as an engine-evaluated expression: the graph runs
// independently of this codebase, so the two renditions must stay in sync.
func NormalizePhone(raw string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	s := strings.TrimLeft(digits.String(), "0")
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, CountryPrefix) {
		s = CountryPrefix + s
	}
	return s
}

// PhoneExpression is the engine-side rendition of NormalizePhone, emitted
// verbatim into the phone-normalization set node. It is opaque data from this
// codebase's point of view; the remote engine evaluates it per message.
const PhoneExpression = `={{ ($json.body?.conversation?.messages?.[0]?.sender?.phone_number || $json.body?.sender?.phone_number || '').toString().replace(/@.*/,'').replace(/\D/g,'').replace(/^0+/,'').replace(/^(?!55)/,'55') }}`

// SessionKeyExpression derives the memory node's per-conversation session key
// at message-handling time: normalized phone, else conversation ID, else a
// composite of account and conversation IDs. Multi-turn context survives per
// conversation without leaking across conversations.
const SessionKeyExpression = `={{ $('Info').item.json.telefone || $('Info').item.json.id_conversa || $json.body?.conversation?.id || ('conv-' + $json.body?.account?.id + '-' + $json.body?.conversation?.id) }}`
