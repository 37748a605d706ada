// Package scraper is the core engine: it feeds page snapshots to the
// decision oracle, validates and executes the returned plans against a live
// browser session, and aggregates extracted entity records. Every failure
// short of losing the browser or the oracle themselves is page-scoped; the
// run carries on and reports what it actually collected.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/uniscrape/internal/htmlutil"
	"github.com/go-scripts/uniscrape/internal/plan"
	"github.com/go-scripts/uniscrape/internal/types"
)

// Oracle proposes what to do on a page. Propose returns a navigation plan,
// ExtractRecord a single entity record; both as raw text that may carry
// incidental formatting.
type Oracle interface {
	Propose(ctx context.Context, pageHTML, pageURL string) (string, error)
	ExtractRecord(ctx context.Context, pageHTML, pageURL string) (string, error)
}

// Browser renders pages and performs clicks against a live session.
type Browser interface {
	Render(ctx context.Context, url string) (types.Page, error)
	Click(ctx context.Context, selector string) (types.Page, error)
}

// Limits is the global work budget. Zero means unlimited. Exceeding a limit
// stops further work cleanly; records aggregated so far are kept.
type Limits struct {
	MaxEntities int
	MaxPages    int
}

// ErrBudgetExceeded signals clean early termination of the drain loop. It
// is never returned from Scrape.
var ErrBudgetExceeded = errors.New("work budget exceeded")

// Config tunes the executor.
type Config struct {
	// MaxPlanDepth bounds how many navigate/click hops one page visit may
	// chain before the page is considered done. The observed site structure
	// is two levels: listing page, then entity page.
	MaxPlanDepth int
	// Concurrency is the worker count for the entity drain phase. Each
	// worker gets its own browser tab per visit; the queue and aggregator
	// are shared and locked.
	Concurrency int
	// MaxHTMLBytes caps cleaned page HTML sent to the oracle.
	MaxHTMLBytes int
	// CategorySlug is the listing path segment used to derive a fallback
	// URL when a plan is unusable, e.g. "universities" in
	// /en/turkey/universities.
	CategorySlug string
	// ShowProgress enables the terminal spinner.
	ShowProgress bool
}

func (c *Config) applyDefaults() {
	if c.MaxPlanDepth <= 0 {
		c.MaxPlanDepth = 2
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxHTMLBytes <= 0 {
		c.MaxHTMLBytes = htmlutil.DefaultMaxBytes
	}
	if c.CategorySlug == "" {
		c.CategorySlug = "universities"
	}
}

// Scraper drives one browser session. It is not safe for concurrent Scrape
// calls; run one Scraper per session.
type Scraper struct {
	config  Config
	oracle  Oracle
	browser Browser
}

// New creates a Scraper over the given capabilities.
func New(oracle Oracle, browser Browser, config Config) *Scraper {
	config.applyDefaults()
	return &Scraper{config: config, oracle: oracle, browser: browser}
}

// run holds the state owned by a single scrape invocation: the work queue,
// the aggregate, and the page counter. Nothing here outlives the call.
type run struct {
	queue  *WorkQueue
	agg    *Aggregator
	limits Limits
	pages  atomic.Int64
}

func (r *run) budgetExceeded() bool {
	if r.limits.MaxEntities > 0 && r.agg.Count() >= r.limits.MaxEntities {
		return true
	}
	if r.limits.MaxPages > 0 && int(r.pages.Load()) >= r.limits.MaxPages {
		return true
	}
	return false
}

// Scrape is the single outward entry point: start at startURL, follow the
// oracle's plans, drain discovered entity pages, and return everything
// aggregated. Page-level failures are logged and skipped; the only error
// returned is an unusable start URL.
func (s *Scraper) Scrape(ctx context.Context, startURL string, limits Limits) (types.Result, error) {
	normalized, err := normalizeURL(startURL, "")
	if err != nil {
		return types.Result{}, fmt.Errorf("invalid start URL %q: %w", startURL, err)
	}

	r := &run{
		queue:  NewWorkQueue(),
		agg:    NewAggregator(),
		limits: limits,
	}

	log.Info("Starting scrape", "start_url", normalized)

	page, err := s.render(ctx, r, normalized)
	if err != nil {
		log.Error("Failed to render start page", "url", normalized, "error", err)
		return r.agg.Snapshot(), nil
	}

	if err := s.processPage(ctx, r, page, 0); err != nil {
		log.Warn("Start page failed", "url", page.URL, "error", err)
	}

	s.drainEntityPages(ctx, r)

	result := r.agg.Snapshot()
	log.Info("Scrape finished", "total_found", result.TotalFound, "pages_visited", r.pages.Load())
	return result, nil
}

// pageState enumerates the executor's per-page states.
type pageState int

const (
	stateAwaitingPlan pageState = iota
	stateDispatching
	stateExtracting
	stateNavigating
	stateClicking
	stateDone
	stateFailed
)

// processPage runs the plan loop for one page: ask the oracle, validate,
// dispatch. Navigate and click re-enter the loop on the resulting page,
// bounded by MaxPlanDepth. The returned error describes why the page
// failed; it is page-scoped and the caller only logs it.
func (s *Scraper) processPage(ctx context.Context, r *run, page types.Page, depth int) error {
	var (
		state        = stateAwaitingPlan
		current      *plan.Plan
		failure      error
		fallbackUsed bool
	)

	// fallback applies the recovery policy for unusable plans and failed
	// clicks: one attempt at a derived category listing URL, then Failed.
	fallback := func(cause error) {
		failure = cause
		if fallbackUsed {
			state = stateFailed
			return
		}
		fallbackUsed = true

		fallbackURL, ok := s.deriveFallbackURL(page.URL)
		if !ok {
			log.Warn("No fallback URL derivable", "url", page.URL, "cause", cause)
			state = stateFailed
			return
		}
		log.Info("Falling back to category listing", "url", fallbackURL, "cause", cause)

		next, err := s.render(ctx, r, fallbackURL)
		if err != nil {
			failure = err
			state = stateFailed
			return
		}
		page = next
		state = stateAwaitingPlan
	}

	for {
		switch state {
		case stateAwaitingPlan:
			raw, err := s.oracle.Propose(ctx, htmlutil.Clean(page.HTML, s.config.MaxHTMLBytes), page.URL)
			if err != nil {
				failure = fmt.Errorf("oracle proposal failed: %w", err)
				state = stateFailed
				continue
			}
			validated, err := plan.Validate(raw)
			if err != nil {
				switch {
				case errors.Is(err, plan.ErrUnknownAction), errors.Is(err, plan.ErrUnusableSelector):
					fallback(err)
				default:
					failure = err
					state = stateFailed
				}
				continue
			}
			current = validated
			state = stateDispatching

		case stateDispatching:
			log.Debug("Dispatching plan",
				"url", page.URL,
				"action", current.Action,
				"strategy", current.Strategy,
				"links", len(current.LinkList))
			for _, link := range current.LinkList {
				if s.enqueue(r, page.URL, link) {
					log.Debug("Queued entity page", "url", link)
				}
			}
			switch current.Action {
			case plan.ActionExtract:
				state = stateExtracting
			case plan.ActionNavigate:
				state = stateNavigating
			case plan.ActionClick:
				state = stateClicking
			}

		case stateExtracting:
			for _, rec := range current.Records {
				if normalized, ok := normalizeRecord(rec); ok {
					r.agg.Ingest(normalized, page.URL)
				}
			}
			log.Debug("Extracted records from page", "url", page.URL, "count", len(current.Records))
			state = stateDone

		case stateNavigating:
			if depth+1 >= s.config.MaxPlanDepth {
				log.Debug("Plan depth bound reached, not navigating", "url", page.URL, "target", current.TargetURL)
				state = stateDone
				continue
			}
			next, err := s.render(ctx, r, current.TargetURL)
			if err != nil {
				failure = err
				state = stateFailed
				continue
			}
			if err := s.processPage(ctx, r, next, depth+1); err != nil {
				log.Warn("Navigated page failed", "url", next.URL, "error", err)
			}
			state = stateDone

		case stateClicking:
			if depth+1 >= s.config.MaxPlanDepth {
				log.Debug("Plan depth bound reached, not clicking", "url", page.URL, "selector", current.Selector)
				state = stateDone
				continue
			}
			next, err := s.browser.Click(ctx, current.Selector)
			if err != nil {
				// A failed click means the selector did not hold up
				// against the live DOM; recover the same way as an
				// unusable one.
				fallback(fmt.Errorf("click %q failed: %w", current.Selector, err))
				continue
			}
			r.pages.Add(1)
			if err := s.processPage(ctx, r, next, depth+1); err != nil {
				log.Warn("Clicked page failed", "url", next.URL, "error", err)
			}
			state = stateDone

		case stateDone:
			return nil

		case stateFailed:
			return failure
		}
	}
}

// drainEntityPages visits every queued URL with a single-page extraction
// pass. The budget is checked before each dequeue; per-entity failures are
// logged as skipped and never stop the run.
func (s *Scraper) drainEntityPages(ctx context.Context, r *run) {
	prog := newProgress(s.config.ShowProgress)
	defer prog.stop()

	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup

	for {
		if ctx.Err() != nil {
			break
		}
		if r.budgetExceeded() {
			log.Info("Stopping early", "reason", ErrBudgetExceeded,
				"entities", r.agg.Count(), "pages", r.pages.Load())
			break
		}
		pageURL, ok := r.queue.Next()
		if !ok {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pageURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.visitEntityPage(ctx, r, pageURL, prog); err != nil {
				log.Warn("Skipping entity page", "url", pageURL, "error", err)
			}
		}(pageURL)

		// Sequential by default; only fan out when configured.
		if s.config.Concurrency == 1 {
			wg.Wait()
		}
	}
	wg.Wait()
}

// visitEntityPage renders one entity page, asks the oracle for a structured
// record, and ingests it.
func (s *Scraper) visitEntityPage(ctx context.Context, r *run, pageURL string, prog *progress) error {
	prog.start(pageURL)
	defer prog.stop()

	page, err := s.render(ctx, r, pageURL)
	if err != nil {
		return err
	}

	raw, err := s.oracle.ExtractRecord(ctx, htmlutil.Clean(page.HTML, s.config.MaxHTMLBytes), page.URL)
	if err != nil {
		return fmt.Errorf("oracle extraction failed: %w", err)
	}

	var rec types.EntityRecord
	if err := json.Unmarshal([]byte(plan.StripFences(raw)), &rec); err != nil {
		return fmt.Errorf("%w: entity record: %v", plan.ErrMalformedPlan, err)
	}
	normalized, ok := normalizeRecord(rec)
	if !ok {
		return fmt.Errorf("%w: empty entity record", plan.ErrMalformedPlan)
	}

	stamped := r.agg.Ingest(normalized, page.URL)
	log.Info("Extracted entity", "url", page.URL, "name", stamped["name"])
	return nil
}

// render loads a page and counts it against the page budget.
func (s *Scraper) render(ctx context.Context, r *run, pageURL string) (types.Page, error) {
	page, err := s.browser.Render(ctx, pageURL)
	if err != nil {
		return types.Page{}, fmt.Errorf("render %q failed: %w", pageURL, err)
	}
	r.pages.Add(1)
	return page, nil
}

func (s *Scraper) enqueue(r *run, base, href string) bool {
	return r.queue.Enqueue(base, href)
}

// deriveFallbackURL builds a category listing URL from the current page,
// keeping the first path segment (the locale): /en/turkey/... becomes
// /en/universities. There is no fallback when the page has no path to
// derive from or when it already is the fallback.
func (s *Scraper) deriveFallbackURL(currentURL string) (string, bool) {
	u, err := url.Parse(currentURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "", false
	}
	candidate := fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, segments[0], s.config.CategorySlug)
	normalized, err := normalizeURL(candidate, "")
	if err != nil {
		return "", false
	}
	if current, err := normalizeURL(currentURL, ""); err == nil && current == normalized {
		return "", false
	}
	return normalized, true
}

// normalizeRecord drops empty values and rejects records with nothing left.
func normalizeRecord(raw types.EntityRecord) (types.EntityRecord, bool) {
	out := make(types.EntityRecord, len(raw))
	for k, v := range raw {
		if k == "" || v == nil {
			continue
		}
		if str, isString := v.(string); isString {
			str = strings.TrimSpace(str)
			if str == "" {
				continue
			}
			out[k] = str
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
