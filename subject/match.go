// Package subject implements whole-string glob matching for in-process
// broker subscriptions. Wildcard characters are '*' (any run of characters,
// including the empty run and '.') and '?' (exactly one character); every
// other character matches literally.
package subject

// Match reports whether subject matches pattern under the '*'/'?' glob
// alphabet. Matching is anchored to the full string: "message.*" matches
// "message.test" but not "test.message".
func Match(pattern, subj string) bool {
	return match([]rune(pattern), []rune(subj))
}

// match is a classic recursive-descent glob matcher with backtracking on
// '*'. Subjects and patterns are short (dot-separated subject strings), so
// this never approaches pathological backtracking depth in practice.
func match(pattern, s []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive '*' to avoid redundant recursion.
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if match(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		}
	}
	return len(s) == 0
}
