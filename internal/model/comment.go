package model

import "strings"

// CleanComment strips language comment markers from a documentation block:
// Python string quotes and prefixes, /** */ blocks with leading stars, and
// runs of // or # line comments.
func CleanComment(text string) string {
	s := strings.TrimSpace(text)
	switch {
	case isPyString(s):
		return strings.TrimSpace(stripPyQuotes(s))
	case strings.HasPrefix(s, "/*"):
		s = strings.TrimPrefix(s, "/*")
		s = strings.TrimLeft(s, "*!")
		s = strings.TrimSuffix(s, "*/")
		lines := strings.Split(s, "\n")
		for i, l := range lines {
			t := strings.TrimLeft(l, " \t")
			if strings.HasPrefix(t, "*") {
				t = strings.TrimPrefix(t, "*")
				t = strings.TrimPrefix(t, " ")
				lines[i] = t
				continue
			}
			lines[i] = l
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	case strings.HasPrefix(s, "//"), strings.HasPrefix(s, "#"):
		lines := strings.Split(s, "\n")
		for i, l := range lines {
			t := strings.TrimLeft(l, " \t")
			for _, marker := range []string{"///", "//", "#"} {
				if strings.HasPrefix(t, marker) {
					t = strings.TrimPrefix(t, marker)
					break
				}
			}
			// Go doc comments keep one space after the marker; anything more
			// is an indented code block.
			t = strings.TrimPrefix(t, " ")
			lines[i] = t
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}
	return s
}

func isPyString(s string) bool {
	s = strings.TrimLeft(s, "rRuUbBfF")
	return strings.HasPrefix(s, `"`) || strings.HasPrefix(s, `'`)
}

func stripPyQuotes(s string) string {
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
