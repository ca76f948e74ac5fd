package convo

import (
	"regexp"
	"strings"
)

// MinedContact is what contact mining pulls out of customer messages.
type MinedContact struct {
	Name  string
	Phone string
	Email string
}

var (
	// 10 digits with common separators, bounded by non-digits so VINs and
	// stock numbers do not match.
	phoneRe = regexp.MustCompile(`(?:^|[^\d])\(?(\d{3})\)?[\s.-]?(\d{3})[\s.-]?(\d{4})(?:[^\d]|$)`)

	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Name directly adjacent to a phone number: "Riley 6048334967",
	// "Riley, 604-833-4967".
	nameWithPhoneRe = regexp.MustCompile(`(?i)^\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)[\s,:-]+\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\s*$`)

	// Introductory phrases.
	nameIntroRe = regexp.MustCompile(`(?i)(?:my name is|name's|i am|i'm|call me|this is)\s+([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+)?)`)
)

// Words that the intro patterns match but are never names.
var nameStopWords = map[string]bool{
	"interested": true,
	"looking":    true,
	"wondering":  true,
	"calling":    true,
	"here":       true,
	"just":       true,
	"not":        true,
	"good":       true,
	"sorry":      true,
	"available":  true,
}

// MineContact extracts phone, email and name from one user-authored message.
// Fields it cannot find are left empty; callers only fill conversation
// fields that are still blank.
func MineContact(body string) MinedContact {
	var m MinedContact

	if g := phoneRe.FindStringSubmatch(body); g != nil {
		m.Phone = g[1] + g[2] + g[3]
	}
	if e := emailRe.FindString(body); e != "" {
		m.Email = strings.ToLower(e)
	}
	m.Name = mineName(body, m.Phone != "")
	return m
}

func mineName(body string, hasPhone bool) string {
	if hasPhone {
		if g := nameWithPhoneRe.FindStringSubmatch(body); g != nil {
			if n := cleanName(g[1]); n != "" {
				return n
			}
		}
	}
	if g := nameIntroRe.FindStringSubmatch(body); g != nil {
		return cleanName(g[1])
	}
	return ""
}

func cleanName(raw string) string {
	raw = strings.TrimSpace(raw)
	fields := strings.Fields(raw)
	if len(fields) == 0 || nameStopWords[strings.ToLower(fields[0])] {
		return ""
	}
	return raw
}
