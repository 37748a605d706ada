package scraper

import "testing"

func TestWorkQueueDedupsByNormalizedURL(t *testing.T) {
	q := NewWorkQueue()
	base := "https://www.unipage.net/en/universities"

	testCases := []struct {
		href     string
		accepted bool
	}{
		{href: "https://www.unipage.net/en/1/a", accepted: true},
		{href: "https://www.unipage.net/en/1/a", accepted: false},      // exact dup
		{href: "/en/1/a", accepted: false},                             // relative form of same URL
		{href: "HTTPS://WWW.UNIPAGE.NET/en/1/a", accepted: false},      // case-insensitive host
		{href: "https://www.unipage.net/en/1/a#programs", accepted: false}, // fragment stripped
		{href: "https://www.unipage.net/en/2/b", accepted: true},
	}

	for _, tc := range testCases {
		if got := q.Enqueue(base, tc.href); got != tc.accepted {
			t.Errorf("Enqueue(%q) = %v, want %v", tc.href, got, tc.accepted)
		}
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestWorkQueueVisitedURLsCannotReturn(t *testing.T) {
	q := NewWorkQueue()
	base := "https://www.unipage.net/en"

	q.Enqueue(base, "https://www.unipage.net/en/1/a")
	u, ok := q.Next()
	if !ok || u != "https://www.unipage.net/en/1/a" {
		t.Fatalf("Next = %q, %v", u, ok)
	}

	// Rediscovery via another listing must not re-queue a visited URL.
	if q.Enqueue(base, "https://www.unipage.net/en/1/a") {
		t.Error("visited URL was re-enqueued")
	}
	if _, ok := q.Next(); ok {
		t.Error("queue should be empty")
	}
}

func TestWorkQueueOrder(t *testing.T) {
	q := NewWorkQueue()
	base := "https://example.com/"
	for _, href := range []string{"/a", "/b", "/c"} {
		q.Enqueue(base, href)
	}

	want := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	for _, w := range want {
		got, ok := q.Next()
		if !ok || got != w {
			t.Errorf("Next = %q, %v, want %q", got, ok, w)
		}
	}
}

func TestWorkQueueRejectsUnsupportedURLs(t *testing.T) {
	q := NewWorkQueue()
	base := "https://example.com/page"

	for _, href := range []string{"javascript:void(0)", "mailto:a@b.c", "::bad::"} {
		if q.Enqueue(base, href) {
			t.Errorf("Enqueue(%q) accepted, want rejected", href)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		name    string
		base    string
		href    string
		want    string
		wantErr bool
	}{
		{
			name: "relative path",
			base: "https://www.unipage.net/en/universities",
			href: "/en/1/a",
			want: "https://www.unipage.net/en/1/a",
		},
		{
			name: "lowercases host",
			base: "https://example.com/",
			href: "https://EXAMPLE.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "drops fragment",
			base: "https://example.com/",
			href: "https://example.com/a#section",
			want: "https://example.com/a",
		},
		{
			name:    "rejects mailto",
			base:    "https://example.com/",
			href:    "mailto:x@y.z",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeURL(tc.base, tc.href)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("normalizeURL(%q, %q) = %q, want error", tc.base, tc.href, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeURL returned error: %v", err)
			}
			if got != tc.want {
				t.Errorf("normalizeURL = %q, want %q", got, tc.want)
			}
		})
	}
}
