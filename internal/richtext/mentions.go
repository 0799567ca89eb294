package richtext

import "regexp"

var (
	mentionRegex     = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)
	playCommandRegex = regexp.MustCompile(`/play\s+([A-Za-z0-9_-]+)`)
)

// ExtractMentions returns the usernames (without the leading "@")
// mentioned in content, in order of appearance, duplicates included.
func ExtractMentions(content string) []string {
	matches := mentionRegex.FindAllStringSubmatch(content, -1)
	if matches == nil {
		return nil
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m[1]
	}
	return out
}

// ExtractPlayCommands returns the sound names referenced by /play
// commands in content, filtered down to names in the available-sounds
// allow-list.
func ExtractPlayCommands(content string) []string {
	matches := playCommandRegex.FindAllStringSubmatch(content, -1)
	var out []string
	for _, m := range matches {
		if IsValidSound(m[1]) {
			out = append(out, m[1])
		}
	}
	return out
}
