package notifications

import (
	"strings"
	"time"
)

// FallbackApp replaces an empty application name.
const FallbackApp = "System"

const (
	callMarker   = "Member=Notify"
	stringPrefix = `STRING "`

	fieldApp     = 0
	fieldSummary = 2
	fieldBody    = 3
)

// Parser rebuilds Notify calls from busctl monitor output, one line at a time.
// Between a call header and its body field it counts quoted STRING lines;
// positions 0, 2 and 3 carry the app name, summary and body. Anything else is
// skipped.
type Parser struct {
	now func() time.Time

	inCall  bool
	index   int
	app     string
	summary string
}

func NewParser(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}

	return &Parser{now: now}
}

// Feed consumes one line and returns a notification when the line completes
// a call with a non-empty summary.
func (p *Parser) Feed(line string) (Notification, bool) {
	line = strings.TrimSpace(line)

	if strings.Contains(line, callMarker) {
		p.inCall = true
		p.index = 0
		p.app = ""
		p.summary = ""
		return Notification{}, false
	}

	if !p.inCall || !strings.HasPrefix(line, stringPrefix) {
		return Notification{}, false
	}

	start := strings.IndexByte(line, '"')
	end := strings.LastIndexByte(line, '"')
	if start >= end {
		return Notification{}, false
	}
	value := line[start+1 : end]

	index := p.index
	p.index++

	switch index {
	case fieldApp:
		p.app = value
	case fieldSummary:
		p.summary = value
	case fieldBody:
		p.inCall = false
		if p.summary == "" {
			return Notification{}, false
		}

		app := p.app
		if app == "" {
			app = FallbackApp
		}

		return Notification{
			AppName:   app,
			Summary:   p.summary,
			Body:      value,
			Timestamp: p.now().Unix(),
		}, true
	}

	return Notification{}, false
}

// Capturing reports whether the parser is inside a Notify call.
func (p *Parser) Capturing() bool {
	return p.inCall
}
