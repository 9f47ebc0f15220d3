package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var naturalTime = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince accepts an RFC 3339 timestamp, a date, a Go duration
// meaning "that long ago", or natural language such as "last monday".
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, now.Location()); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(text); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d), nil
	}

	res, err := naturalTime.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", text, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", text)
	}
	return res.Time, nil
}
