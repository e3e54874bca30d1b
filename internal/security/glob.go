package security

// MatchGlob reports whether s matches pattern, where `*` matches any byte
// sequence (including empty) and `?` matches exactly one byte. This is a
// standard dynamic-programming matcher over the full pattern, extended
// with one rule beyond classic shell globbing: if pattern ends in the
// literal sequence " *" (a trailing space-star), the base command alone
// (pattern with that trailing " *" removed) is also accepted — so
// "ls *" matches both "ls" and "ls -la".
func MatchGlob(pattern, s string) bool {
	if hasTrailingSpaceStar(pattern) {
		base := pattern[:len(pattern)-2]
		if s == base {
			return true
		}
	}
	return matchGlobDP(pattern, s)
}

func hasTrailingSpaceStar(pattern string) bool {
	return len(pattern) >= 2 && pattern[len(pattern)-2:] == " *"
}

// matchGlobDP implements the classic O(len(pattern)*len(s)) table-filling
// glob match over `*` and `?`.
func matchGlobDP(pattern, s string) bool {
	n, m := len(pattern), len(s)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true

	for i := 1; i <= n; i++ {
		if pattern[i-1] == '*' {
			dp[i][0] = dp[i-1][0]
		}
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch pattern[i-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && pattern[i-1] == s[j-1]
			}
		}
	}
	return dp[n][m]
}

// MatchAny reports whether s matches any of patterns, returning the
// first matching pattern (for attributing which rule fired).
func MatchAny(patterns []string, s string) (string, bool) {
	for _, p := range patterns {
		if MatchGlob(p, s) {
			return p, true
		}
	}
	return "", false
}
