// Package killcount extracts boss kill counters from game chat messages.
package killcount

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoKillCount is returned for messages that do not report a kill count.
var ErrNoKillCount = errors.New("message carries no kill count")

var (
	colourTag = regexp.MustCompile(`</?col(=[0-9a-fA-F]+)?>`)
	patterns  = []*regexp.Regexp{
		regexp.MustCompile(`^Your (?:subdued |completed )?(.+?) (?:(?:kill|harvest|lap|completion|success) )?count is: ([0-9,]+)\.?$`),
		regexp.MustCompile(`^Your completion count for (.+?) is: ([0-9,]+)\.?$`),
	}
)

// Reading is one parsed counter.
type Reading struct {
	Boss  string
	Count int64
}

// Parse returns the boss and count reported by message, for example
// "Your Zulrah kill count is: <col=ff0000>12</col>.".
func Parse(message string) (Reading, error) {
	plain := strings.TrimSpace(colourTag.ReplaceAllString(message, ""))
	var m []string
	for _, p := range patterns {
		if m = p.FindStringSubmatch(plain); m != nil {
			break
		}
	}
	if m == nil {
		return Reading{}, ErrNoKillCount
	}
	count, err := strconv.ParseInt(strings.ReplaceAll(m[2], ",", ""), 10, 64)
	if err != nil {
		return Reading{}, ErrNoKillCount
	}
	boss := strings.TrimSpace(m[1])
	if boss == "" {
		return Reading{}, ErrNoKillCount
	}
	return Reading{Boss: boss, Count: count}, nil
}
