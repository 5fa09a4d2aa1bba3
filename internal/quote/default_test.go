package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstreamLog remembers which endpoint saw which request, in arrival order.
type upstreamLog struct {
	mu    sync.Mutex
	paths []string
	stooq []string
	crumb []string
}

func (l *upstreamLog) add(path, stooqSymbol, crumbSymbols string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
	if stooqSymbol != "" {
		l.stooq = append(l.stooq, stooqSymbol)
	}
	if crumbSymbols != "" {
		l.crumb = append(l.crumb, crumbSymbols)
	}
}

func (l *upstreamLog) snapshot() (paths, stooq, crumb []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...), append([]string(nil), l.stooq...), append([]string(nil), l.crumb...)
}

func newChainUpstream(log *upstreamLog) http.Handler {
	stooqRows := map[string]string{
		"bbb":    "BBB,2024-05-06,17:35:00,2,2,2,2.25,100\n",
		"ccc.pa": "CCC.PA,2024-05-06,17:35:00,3,3,3,3.75,100\n",
	}
	mux := http.NewServeMux()
	unauthorized := func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path, "", "")
		w.WriteHeader(http.StatusUnauthorized)
	}
	mux.HandleFunc("/primary1", unauthorized)
	mux.HandleFunc("/primary2", unauthorized)
	mux.HandleFunc("/session", unauthorized)
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path, "", "")
		http.SetCookie(w, &http.Cookie{Name: "B", Value: "session", Path: "/"})
	})
	mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path, "", "")
		fmt.Fprint(w, "c1")
	})
	mux.HandleFunc("/crumbquote", func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path, "", r.URL.Query().Get("symbols"))
		if r.URL.Query().Get("crumb") != "c1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, quotePayload(map[string]any{"AAA": 1.5}))
	})
	mux.HandleFunc("/stooq", func(w http.ResponseWriter, r *http.Request) {
		s := r.URL.Query().Get("s")
		log.add(r.URL.Path, s, "")
		row, ok := stooqRows[s]
		if !ok {
			row = fmt.Sprintf("%s,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n", s)
		}
		fmt.Fprint(w, stooqHeader+row)
	})
	return mux
}

func TestDefaultSourceFallbackOrder(t *testing.T) {
	log := &upstreamLog{}
	srv := httptest.NewServer(newChainUpstream(log))
	defer srv.Close()

	settings := DefaultSettings()
	settings.Retry = testPolicy(&recordingSleep{})
	settings.Endpoints = Endpoints{
		YahooQuoteURLs:  []string{srv.URL + "/primary1", srv.URL + "/primary2"},
		YahooCookieURL:  srv.URL + "/cookie",
		YahooCrumbURL:   srv.URL + "/crumb",
		YahooSessionURL: srv.URL + "/session",
		YahooCrumbQuote: srv.URL + "/crumbquote",
		StooqURL:        srv.URL + "/stooq",
	}

	got, err := NewDefaultSource(settings).Fetch(context.Background(), []string{"AAA", "BBB", "CCC", "DDD.MI"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAA": 1.5, "BBB": 2.25, "CCC": 3.75}, got)

	paths, stooq, crumb := log.snapshot()
	require.GreaterOrEqual(t, len(paths), 4)
	assert.Equal(t, []string{"/primary1", "/primary2"}, paths[:2], "primary URLs come first, in order")
	assert.Contains(t, paths, "/session")
	assert.Contains(t, paths, "/crumb")

	require.Len(t, crumb, 1)
	assert.ElementsMatch(t, []string{"AAA", "BBB", "CCC", "DDD.MI"}, strings.Split(crumb[0], ","))

	lastCrumb := len(paths) - 1 - slices.Index(reversed(paths), "/crumbquote")
	firstStooq := slices.Index(paths, "/stooq")
	assert.Less(t, lastCrumb, firstStooq, "stooq only runs after the crumb session")

	require.Len(t, stooq, 6)
	assert.ElementsMatch(t, []string{"bbb", "ccc", "ddd.mi"}, stooq[:3], "plain stooq sees the crumb misses")
	assert.Equal(t, []string{"ccc.mi", "ccc.de", "ccc.pa"}, stooq[3:], "suffix retry runs last and stops once priced")
	for _, s := range stooq {
		assert.NotRegexp(t, `^ddd\.mi\.`, s, "suffixed symbols are never re-suffixed")
	}
}

func reversed(items []string) []string {
	out := slices.Clone(items)
	slices.Reverse(out)
	return out
}
