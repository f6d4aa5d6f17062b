package policy

import (
	"regexp"
	"strings"
)

var keyMatch2Param = regexp.MustCompile(`(.*):[^/]+(.*)`)

// keyMatch2Pattern translates an object pattern into an anchored regular
// expression: "/*" matches any suffix and ":param" matches one path
// segment. "/resource/:id" matches "/resource/1" but not "/resource/1/x".
func keyMatch2Pattern(pattern string) (*regexp.Regexp, error) {
	pattern = strings.ReplaceAll(pattern, "/*", "/.*")
	for strings.Contains(pattern, "/:") {
		pattern = keyMatch2Param.ReplaceAllString(pattern, "$1[^/]+$2")
	}
	return regexp.Compile("^" + pattern + "$")
}

// actionPattern translates an action pattern into an unanchored regular
// expression, so "GET" also matches "GET|HEAD" style alternations written
// in rules.
func actionPattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

// KeyMatch2 reports whether the request object matches the rule's object
// pattern. An invalid pattern never matches.
func KeyMatch2(obj, pattern string) bool {
	re, err := keyMatch2Pattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(obj)
}

// RegexMatch reports whether the request action matches the rule's action
// pattern. An invalid pattern never matches.
func RegexMatch(act, pattern string) bool {
	re, err := actionPattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(act)
}
