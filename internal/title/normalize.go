package title

import (
	"regexp"
	"strconv"
	"strings"
)

var ordinals = [...]string{"一", "二", "三", "四", "五", "六", "七", "八", "九", "十"}

var (
	seasonRE      = regexp.MustCompile(`^(.*)(第.*?季)`)
	seasonNumRE   = regexp.MustCompile(`^(.*)第(\d*)季`)
	latinParenRE  = regexp.MustCompile(`\(.*\)`)
	fullParenRE   = regexp.MustCompile(`^(.*)（.*）$`)
	episodeTailRE = regexp.MustCompile(`^(.*)第.*?集`)
)

// Normalize turns a display title into the query key sent to the lookup
// service and used for cache keys.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Replace(s, "《", "", 1)
	s = strings.Replace(s, "》", "", 1)
	s = spaceSeason(s)
	s = ordinalSeason(s)
	if loc := latinParenRE.FindStringIndex(s); loc != nil {
		s = s[:loc[0]] + s[loc[1]:]
	}
	s = fullParenRE.ReplaceAllString(s, "$1")
	s = episodeTailRE.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

func spaceSeason(s string) string {
	m := seasonRE.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	prefix := strings.TrimRight(s[m[2]:m[3]], " ")
	if prefix == "" {
		return s[m[4]:]
	}
	return prefix + " " + s[m[4]:]
}

// ordinalSeason rewrites 第3季 as 第三季. Numbers outside 1-10 stay as digits.
func ordinalSeason(s string) string {
	m := seasonNumRE.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	n, err := strconv.Atoi(s[m[4]:m[5]])
	if err != nil || n < 1 || n > len(ordinals) {
		return s
	}
	return s[m[2]:m[3]] + "第" + ordinals[n-1] + "季" + s[m[1]:]
}
