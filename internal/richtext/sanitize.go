package richtext

import (
	"fmt"
	"strings"

	"github.com/emberchat/ember/internal/id"
	"github.com/microcosm-cc/bluemonday"
)

// ErrSanitizationRemoved is returned when sanitizing a message would
// strip it down to nothing, which almost always indicates the input
// was pure markup (e.g. a bare <script> tag) rather than a message
// the sender intended.
var ErrSanitizationRemoved = fmt.Errorf("richtext: sanitization removed all content")

// policy mirrors the original rich-text allow-list: basic inline
// formatting, code/pre, lists, blockquotes, line breaks, and links
// restricted to http/https/mailto with a mention data attribute.
var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "s", "strike", "del", "br", "code", "pre", "ul", "ol", "li", "blockquote", "a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("data-mention-id").OnElements("a")
	p.AllowAttrs("class").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	return p
}

// ProcessedContent is the result of turning raw message text into
// sanitized HTML plus the rich-text features extracted from it.
type ProcessedContent struct {
	HTML             string
	Mentions         []string
	PlayCommands     []string
	HasRichFeatures  bool
}

// UserLookup resolves a mentioned username to a user id, or reports
// ok=false if no such user exists.
type UserLookup func(username string) (userID id.UserID, ok bool)

// Process extracts @mentions and /play commands from content, turns
// resolvable mentions into links, and sanitizes the resulting HTML
// against the rich-text allow-list.
func Process(content string, lookup UserLookup) (ProcessedContent, error) {
	mentions := ExtractMentions(content)
	playCommands := ExtractPlayCommands(content)

	html, err := linkifyAndSanitize(content, mentions, lookup)
	if err != nil {
		return ProcessedContent{}, err
	}

	hasRich := len(mentions) > 0 || len(playCommands) > 0 || html != content || hasHTMLFormatting(html)

	return ProcessedContent{
		HTML:            html,
		Mentions:        mentions,
		PlayCommands:    playCommands,
		HasRichFeatures: hasRich,
	}, nil
}

func linkifyAndSanitize(content string, mentions []string, lookup UserLookup) (string, error) {
	processed := content
	for _, mention := range mentions {
		uid, ok := lookup(mention)
		if !ok {
			continue
		}
		pattern := "@" + mention
		link := fmt.Sprintf(`<a href="/users/%s" data-mention-id="%s" class="mention">@%s</a>`, uid.String(), uid.String(), mention)
		processed = strings.ReplaceAll(processed, pattern, link)
	}

	sanitized := policy.Sanitize(processed)
	if strings.TrimSpace(sanitized) == "" && strings.TrimSpace(content) != "" {
		return "", ErrSanitizationRemoved
	}
	return sanitized, nil
}

func hasHTMLFormatting(s string) bool {
	for {
		start := strings.IndexByte(s, '<')
		if start < 0 {
			return false
		}
		end := strings.IndexByte(s[start:], '>')
		if end < 0 {
			return false
		}
		tag := s[start : start+end+1]
		if !strings.HasPrefix(tag, "<a ") && !strings.HasPrefix(tag, "</a>") &&
			!strings.HasPrefix(tag, "<br") && !strings.HasPrefix(tag, "</br>") {
			return true
		}
		s = s[start+end+1:]
	}
}

// ExtractAndCleanPlayCommands strips /play commands out of content for
// display purposes, returning the cleaned text and the recognized
// sound names it referenced.
func ExtractAndCleanPlayCommands(content string) (string, []string) {
	commands := ExtractPlayCommands(content)
	cleaned := playCommandRegex.ReplaceAllString(content, "")

	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), commands
}
