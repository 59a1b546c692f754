// Package moderation detects contact details and off-platform payment
// attempts in user supplied text.
package moderation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ds124wfegd/spa-booking/internal/entity"
	"golang.org/x/text/width"
)

// Redacted replaces every detected fragment in audit copies.
const Redacted = "[removed]"

type rule struct {
	kind     entity.ViolationType
	patterns []*regexp.Regexp
	// minDigits drops matches that carry fewer digits than this.
	minDigits int
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

const digitWordsEN = `(zero|one|two|three|four|five|six|seven|eight|nine)`
const digitWordsID = `(nol|satu|dua|tiga|empat|lima|enam|tujuh|delapan|sembilan)`

var rules = []rule{
	{
		kind: entity.ViolationPhoneDigits,
		patterns: compile(
			`\b0\s*8\s*\d[\d\s\-.]{7,}`,
			`\+?\b6\s*2\s*\d[\d\s\-.]{8,}`,
			`\+\s*1\s*[\d\s\-.]{9,}`,
			`\b\d{3,4}[\s\-.]\d{3,4}[\s\-.]\d{3,4}`,
			`\b\d{10,13}\b`,
		),
		minDigits: 8,
	},
	{
		kind: entity.ViolationPhoneWords,
		patterns: compile(
			`\b`+digitWordsEN+`\s+`+digitWordsEN+`\s+`+digitWordsEN+`\b`,
			`\bzero\s*eight\b`,
			`\boh\s*eight\b`,
			`\b`+digitWordsID+`\s+`+digitWordsID+`\s+`+digitWordsID+`\b`,
			`\bnol\s*delapan\b`,
			`\benam\s*dua\b`,
		),
	},
	{
		kind: entity.ViolationWhatsApp,
		patterns: compile(
			`\bwa\b`,
			`\bw\.a\.?`,
			`\bwhats\s*app`,
			`\bwhatsap+`,
			`\bwhatssap`,
			`\bwatsap`,
		),
	},
	{
		kind: entity.ViolationPhrase,
		patterns: compile(
			`\bcall\s+me\b`,
			`\bmy\s+(number|phone|cell|mobile)\b`,
			`\bcontact\s+me\b`,
			`\btext\s+me\b`,
			`\bmessage\s+me\s+(on|at)\b`,
			`\breach\s+me\s+(on|at)\b`,
			`\bhere'?s?\s+my\s+(number|phone|contact)\b`,
			`\bhubungi\s+(saya|aku)\b`,
			`\bnomor\s+(saya|aku|hp)\b`,
			`\btelp\s+(saya|aku)\b`,
			`\btelepon\s+(saya|aku)\b`,
			`\bhandphone\s+(saya|aku)\b`,
			`\bhp\s+(saya|aku)\b`,
			`\bini\s+nomor\b`,
			`\bkontak\s+(saya|aku)\b`,
		),
	},
	{
		kind: entity.ViolationSocial,
		patterns: compile(
			`(^|[^a-z0-9._%+-])@[a-z0-9_]{3,}`,
			`\b(ig|insta|instagram|telegram|tele|tg|line|fb|facebook)\s*(id)?\s*[:@]\s*[a-z0-9_.]{3,}`,
			`\b(instagram|telegram|facebook|line\s+id)\b`,
		),
	},
	{
		kind: entity.ViolationEmail,
		patterns: compile(
			`\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`,
			`\b[a-z0-9._%+-]+\s*\[\s*at\s*\]\s*[a-z0-9.-]+\s*\[\s*dot\s*\]\s*[a-z]{2,}\b`,
		),
	},
	{
		kind: entity.ViolationBank,
		patterns: compile(
			`\b\d{10,16}\b`,
			`\b(bca|bni|bri|mandiri|cimb|danamon|permata)\s*[:.]?\s*\d{8,}`,
			`\b(rekening|rek|account\s+number|norek)\s*[:.]?\s*\d{6,}`,
		),
	},
	{
		kind: entity.ViolationInternalID,
		patterns: compile(
			`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`,
			`\b(user|provider|therapist|customer|booking)[\s_-]?id\s*[:=]\s*\S+`,
		),
	},
	{
		kind: entity.ViolationPayout,
		patterns: compile(
			`\b(pay|paying|payment|transfer)\s+(me\s+)?(directly|direct|outside)\b`,
			`\b(no|without|skip|avoid)\s+(the\s+)?(commission|admin\s+fee|app\s+fee)\b`,
			`\boutside\s+(of\s+)?(the\s+)?app\b`,
			`\b(bayar|transfer)\s+(langsung|ke\s+saya)\b`,
			`\btanpa\s+(komisi|aplikasi)\b`,
			`\bdi\s*luar\s+aplikasi\b`,
		),
	},
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func (r rule) accepts(match string) bool {
	return r.minDigits == 0 || countDigits(match) >= r.minDigits
}

// normalize folds fullwidth forms to ASCII and rewrites every other
// decimal digit (Arabic-Indic, Devanagari, ...) as its ASCII digit.
func normalize(content string) string {
	return strings.Map(asciiDigit, width.Fold.String(content))
}

func asciiDigit(r rune) rune {
	if r < 0x80 || !unicode.IsDigit(r) {
		return r
	}
	// Nd ranges are runs of ten starting at zero.
	for _, rg := range unicode.Nd.R16 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi {
			return '0' + (r-lo)/rune(rg.Stride)%10
		}
	}
	for _, rg := range unicode.Nd.R32 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi {
			return '0' + (r-lo)/rune(rg.Stride)%10
		}
	}
	return r
}

// Detect returns the violation types found in content, in a stable order,
// without duplicates. An empty result means the content is clean.
func Detect(content string) []entity.ViolationType {
	content = normalize(content)
	var found []entity.ViolationType
	for _, r := range rules {
		if r.matches(content) {
			found = append(found, r.kind)
		}
	}
	return found
}

func (r rule) matches(content string) bool {
	for _, p := range r.patterns {
		for _, m := range p.FindAllString(content, -1) {
			if r.accepts(m) {
				return true
			}
		}
	}
	return false
}

// Redact replaces every detected fragment with Redacted.
func Redact(content string) string {
	out := normalize(content)
	for _, r := range rules {
		for _, p := range r.patterns {
			out = p.ReplaceAllStringFunc(out, func(m string) string {
				if !r.accepts(m) {
					return m
				}
				return Redacted
			})
		}
	}
	return strings.TrimSpace(out)
}
