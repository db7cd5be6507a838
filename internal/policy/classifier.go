package policy

import (
	"strings"

	"github.com/mssola/useragent"
)

// Classifier decides whether an identity signal belongs to automated
// traffic. It is pluggable so stricter classifiers can replace the default
// heuristic without touching the engine's control flow.
type Classifier interface {
	Automated(signal string) bool
}

// HeuristicClassifier is the reference heuristic: the lower-cased signal
// contains "bot". Deliberately simple; a human browser whose signal happens
// to contain "bot" is classified as automated.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Automated(signal string) bool {
	return strings.Contains(strings.ToLower(signal), "bot")
}

// UserAgentClassifier parses the signal as a User-Agent header and combines
// the parser's bot detection with the substring heuristic. Stricter on
// browser-shaped signals, identical on bare bot signatures.
type UserAgentClassifier struct{}

func (UserAgentClassifier) Automated(signal string) bool {
	ua := useragent.New(signal)
	if ua.Bot() {
		return true
	}
	// Parser recognizes a real browser engine: trust it over the substring
	// heuristic.
	if name, version := ua.Browser(); name != "" && version != "" && ua.OS() != "" {
		return false
	}
	return HeuristicClassifier{}.Automated(signal)
}
