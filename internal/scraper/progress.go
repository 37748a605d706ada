package scraper

import (
	"fmt"
	"net/url"
	"time"

	"github.com/briandowns/spinner"
)

// progress shows the URL currently being worked in a terminal spinner. A
// nil progress is a no-op, so library callers and tests pay nothing.
type progress struct {
	spin *spinner.Spinner
}

func newProgress(enabled bool) *progress {
	if !enabled {
		return nil
	}
	return &progress{spin: spinner.New(spinner.CharSets[9], 100*time.Millisecond)}
}

func (p *progress) start(urlStr string) {
	if p == nil {
		return
	}
	p.spin.Suffix = fmt.Sprintf(" %s", formatProgressURL(urlStr))
	p.spin.Start()
}

func (p *progress) stop() {
	if p == nil {
		return
	}
	p.spin.Stop()
}

// formatProgressURL truncates long URLs, keeping the host and the tail of
// the path.
func formatProgressURL(urlStr string) string {
	const maxLen = 60
	if len(urlStr) <= maxLen {
		return urlStr
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "..." + urlStr[len(urlStr)-maxLen:]
	}
	host := u.Host
	path := u.Path
	if len(path) > maxLen-len(host)-3 {
		path = "..." + path[len(path)-(maxLen-len(host)-3):]
	}
	return host + path
}
