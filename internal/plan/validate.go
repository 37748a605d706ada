package plan

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-scripts/uniscrape/internal/types"
)

// rawPlan mirrors the oracle's wire shape. Both "link_list" and the older
// "links" key are accepted for discovered URLs.
type rawPlan struct {
	Strategy  string           `json:"strategy"`
	Action    string           `json:"action"`
	Selector  string           `json:"selector"`
	TargetURL string           `json:"target_url"`
	LinkList  []string         `json:"link_list"`
	Links     []string         `json:"links"`
	Records   []map[string]any `json:"records"`
}

var (
	fenceOpenRe  = regexp.MustCompile("(?i)```(?:json)?[ \t]*\n?")
	selectorOrRe = regexp.MustCompile(`(?i)\bor\b`)
)

// StripFences removes markdown code-fence wrappers the oracle sometimes
// emits around its JSON.
func StripFences(s string) string {
	s = fenceOpenRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// UsableSelector reports whether a click selector is safe to hand to the
// browser. Empty strings, parenthetical alternatives, the word "or", and
// hedge words like "speculative" mark selectors the oracle made up rather
// than found.
func UsableSelector(selector string) bool {
	s := strings.TrimSpace(selector)
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, "()") {
		return false
	}
	if selectorOrRe.MatchString(s) {
		return false
	}
	if strings.Contains(strings.ToLower(s), "speculative") {
		return false
	}
	return true
}

// Validate parses raw oracle output into a Plan. It strips incidental
// formatting, checks the declared action, and discards payload fields that
// contradict it rather than failing the whole plan. Errors wrap the
// package's sentinel taxonomy.
func Validate(raw string) (*Plan, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedPlan)
	}

	var rp rawPlan
	if err := json.Unmarshal([]byte(cleaned), &rp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	p := &Plan{
		Strategy: rp.Strategy,
		LinkList: rp.LinkList,
	}
	if len(p.LinkList) == 0 {
		p.LinkList = rp.Links
	}

	switch Action(strings.ToLower(strings.TrimSpace(rp.Action))) {
	case ActionExtract:
		p.Action = ActionExtract
		p.Records = make([]types.EntityRecord, 0, len(rp.Records))
		for _, r := range rp.Records {
			if len(r) == 0 {
				continue
			}
			p.Records = append(p.Records, types.EntityRecord(r))
		}

	case ActionNavigate:
		target, err := url.Parse(strings.TrimSpace(rp.TargetURL))
		if err != nil || !target.IsAbs() || target.Host == "" {
			return nil, fmt.Errorf("%w: navigate requires an absolute target_url, got %q", ErrMalformedPlan, rp.TargetURL)
		}
		p.Action = ActionNavigate
		p.TargetURL = target.String()

	case ActionClick:
		if !UsableSelector(rp.Selector) {
			return nil, fmt.Errorf("%w: %q", ErrUnusableSelector, rp.Selector)
		}
		p.Action = ActionClick
		p.Selector = strings.TrimSpace(rp.Selector)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, rp.Action)
	}

	return p, nil
}
