package caption

import "strings"

// Wrap prepends topPadding blank lines, then greedily wraps every logical
// line to at most width runes. Tokens longer than width are split; empty
// logical lines are kept as one empty line.
func Wrap(text string, width, topPadding int) []string {
	if width < 1 {
		width = 1
	}
	padded := strings.Repeat("\n", max(topPadding, 0)) + text

	var out []string
	for _, line := range strings.Split(padded, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	return out
}

func wrapLine(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}

	var (
		lines []string
		cur   []rune
	)
	flush := func() {
		lines = append(lines, string(cur))
		cur = nil
	}

	for _, w := range words {
		r := []rune(w)
		for len(r) > 0 {
			if len(cur) == 0 {
				n := min(len(r), width)
				cur = append(cur, r[:n]...)
				r = r[n:]
				if len(r) > 0 {
					flush()
				}
				continue
			}
			if len(cur)+1+len(r) <= width {
				cur = append(cur, ' ')
				cur = append(cur, r...)
				r = nil
				continue
			}
			// An over-long token fills what is left of the current line.
			if len(r) > width {
				if room := width - len(cur) - 1; room > 0 {
					cur = append(cur, ' ')
					cur = append(cur, r[:room]...)
					r = r[room:]
				}
			}
			flush()
		}
	}
	if len(cur) > 0 {
		flush()
	}
	return lines
}
