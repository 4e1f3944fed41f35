package scraper

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const maxDescriptionLen = 2000

// CleanDescription strips HTML markup and collapses whitespace, clamping
// the result so oversized source payloads stay manageable.
func CleanDescription(raw string) string {
	if raw == "" {
		return "Job description not available."
	}

	text := raw
	if doc, err := html.Parse(strings.NewReader(raw)); err == nil {
		text = extractText(doc)
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "Job description not available."
	}
	if len(text) > maxDescriptionLen {
		cut := maxDescriptionLen
		// Back off to a rune boundary so the clamp never splits a
		// multi-byte character.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(extractText(c))
		sb.WriteString(" ")
	}
	return sb.String()
}

var (
	seniorWords = []string{"senior", "sr", "lead", "principal", "staff", "architect"}
	entryWords  = []string{"junior", "jr", "entry", "graduate", "associate", "intern", "trainee"}
)

// InferExperience guesses the experience level from a job title.
func InferExperience(title string) ExperienceLevel {
	lower := strings.ToLower(title)
	for _, w := range seniorWords {
		if strings.Contains(lower, w) {
			return ExperienceSenior
		}
	}
	for _, w := range entryWords {
		if strings.Contains(lower, w) {
			return ExperienceEntry
		}
	}
	return ExperienceMid
}

var knownSkills = map[string]struct{}{
	"python": {}, "javascript": {}, "typescript": {}, "react": {}, "node": {},
	"vue": {}, "angular": {}, "java": {}, "go": {}, "golang": {}, "rust": {},
	"kotlin": {}, "swift": {}, "php": {}, "ruby": {}, "c++": {}, "c#": {},
	"sql": {}, "mongodb": {}, "postgresql": {}, "mysql": {}, "redis": {},
	"elasticsearch": {}, "aws": {}, "gcp": {}, "azure": {}, "docker": {},
	"kubernetes": {}, "terraform": {}, "git": {}, "linux": {}, "jenkins": {},
	"graphql": {}, "rest": {}, "api": {}, "grpc": {},
}

// ExtractSkills keeps tags that look like tech skills, deduplicated
// case-insensitively with first-occurrence order preserved, capped at 10.
func ExtractSkills(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var skills []string
	for _, tag := range tags {
		t := strings.TrimSpace(tag)
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		if _, dup := seen[lower]; dup {
			continue
		}
		if !isSkill(lower) {
			continue
		}
		seen[lower] = struct{}{}
		skills = append(skills, t)
		if len(skills) == 10 {
			break
		}
	}
	return skills
}

func isSkill(lower string) bool {
	if _, ok := knownSkills[lower]; ok {
		return true
	}
	for known := range knownSkills {
		if len(known) > 2 && strings.Contains(lower, known) {
			return true
		}
	}
	// Fall back to accepting short alphanumeric tags as skills.
	compact := strings.ReplaceAll(strings.ReplaceAll(lower, " ", ""), "-", "")
	return len(lower) > 2 && isAlnum(compact)
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// ParseSalary converts a salary value to an annual integer amount.
// Values under 1000 are treated as thousands.
func ParseSalary(raw string) *int {
	if raw == "" {
		return nil
	}
	digits := strings.Builder{}
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	if n < 1000 {
		n *= 1000
	}
	return &n
}

// NormalizePostedAt defaults a missing timestamp to ingestion time.
func NormalizePostedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
