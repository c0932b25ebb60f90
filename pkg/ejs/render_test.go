package ejs

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/CTAG07/Nepenthes/pkg/script"
)

type countingObserver struct {
	mu           sync.Mutex
	hits, misses map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *countingObserver) CacheHit(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[key]++
}

func (o *countingObserver) CacheMiss(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses[key]++
}

func newTestRenderer(t *testing.T) (*Renderer, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRenderer(logger, NewCache(), nil), &logs
}

type page struct {
	Title string
}

func TestRender(t *testing.T) {
	r, _ := newTestRenderer(t)

	tests := []struct {
		name   string
		src    string
		locals map[string]any
		want   string
	}{
		{"Escaped output", "Hi <%= name %>!", map[string]any{"name": "World"}, "Hi World!"},
		{"Escaping applied", "<p><%= v %></p>", map[string]any{"v": `<b>"A&B"</b>`}, "<p>&lt;b&gt;&quot;A&amp;B&quot;&lt;/b&gt;</p>"},
		{"Raw output", "<p><%- v %></p>", map[string]any{"v": "<b>x</b>"}, "<p><b>x</b></p>"},
		{"If true", "<% if (flag) { %>Yes<% } else { %>No<% } %>", map[string]any{"flag": true}, "Yes"},
		{"If false", "<% if (flag) { %>Yes<% } else { %>No<% } %>", map[string]any{"flag": false}, "No"},
		{"For-of loop", "<ul><% for (item of items) { %><li><%= item %></li><% } %></ul>", map[string]any{"items": []string{"a", "<b>"}}, "<ul><li>a</li><li>&lt;b&gt;</li></ul>"},
		{"Classic loop", "<% for (var i = 0; i < n; i++) { %><%= i %>,<% } %>", map[string]any{"n": 3}, "0,1,2,"},
		{"Newlines preserved", "a\nb\r\nc", nil, "a\nb \nc"},
		{"Quotes and backslashes", `it's a \ "test"`, nil, `it's a \ "test"`},
		{"Expressions", "<%= price * qty %> <%= user.Title.toUpperCase() %>", map[string]any{"price": 2.5, "qty": 4, "user": page{Title: "x"}}, "10 X"},
		{"Nil renders empty", "[<%= missing %>][<%- missing %>]", map[string]any{"missing": nil}, "[][]"},
		{"Locals are not mutated", "<% name = 'changed' %><%= name %>", map[string]any{"name": "orig"}, "changed"},
		{"Multibyte text", "héllo → <%= w %>", map[string]any{"w": "wörld"}, "héllo → wörld"},
		{"No tags", "plain", nil, "plain"},
		{"Integers above 2^53 round", "<%= n %>", map[string]any{"n": int64(9007199254740993)}, "9007199254740992"},
		{"Optional local guard", "<% if (typeof title !== 'undefined') { %><%= title %><% } else { %>untitled<% } %>", nil, "untitled"},
		{"Invalid UTF-8 text", "a\xffbc", nil, "a\xffbc"},
		{"Invalid UTF-8 at end", "x\xff", nil, "x\xff"},
		{"Invalid UTF-8 between tags", "café \xff\xfe <%= w %> end\xc3", map[string]any{"w": "ok"}, "café \xff\xfe ok end\xc3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Render(tc.src, Options{Locals: tc.locals})
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRenderDoesNotMutateLocals(t *testing.T) {
	r, _ := newTestRenderer(t)
	locals := map[string]any{"n": 1}
	if _, err := r.Render("<% n = n + 1 %><%= n %>", Options{Locals: locals}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if locals["n"] != 1 {
		t.Errorf("expected locals to be left alone, got %v", locals)
	}
}

func TestRenderErrors(t *testing.T) {
	r, _ := newTestRenderer(t)

	t.Run("Undefined variable", func(t *testing.T) {
		_, err := r.Render("Hi <%= name %>", Options{})
		if !errors.Is(err, script.ErrUndefined) {
			t.Fatalf("expected ErrUndefined, got %v", err)
		}
		var re *script.RuntimeError
		if !errors.As(err, &re) {
			t.Fatalf("expected the runtime error unchanged, got %T", err)
		}
	})

	t.Run("Unterminated tag", func(t *testing.T) {
		_, err := r.Render("<% oops", Options{})
		var pe *ParseError
		if !errors.As(err, &pe) || !errors.Is(err, ErrUnterminatedTag) {
			t.Fatalf("expected ParseError, got %v", err)
		}
	})

	t.Run("Syntax error in tag code", func(t *testing.T) {
		_, err := r.Render("<%= 1 + %>", Options{})
		var se *script.SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("expected SyntaxError, got %v", err)
		}
	})

	t.Run("Cache without filename", func(t *testing.T) {
		// The template is broken on purpose: the configuration check must
		// come first.
		_, err := r.Render("<% oops", Options{Cache: true})
		if !errors.Is(err, ErrCacheRequiresFilename) {
			t.Fatalf("expected ErrCacheRequiresFilename, got %v", err)
		}
		if r.Cache().Len() != 0 {
			t.Errorf("expected nothing cached, got %d entries", r.Cache().Len())
		}
	})

	t.Run("Iteration limit", func(t *testing.T) {
		limited := NewRenderer(nil, nil, &Config{MaxLoopIterations: 10})
		_, err := limited.Render("<% while (true) { } %>", Options{})
		if !errors.Is(err, script.ErrIterationLimit) {
			t.Fatalf("expected ErrIterationLimit, got %v", err)
		}
	})
}

func TestRenderCache(t *testing.T) {
	obs := newCountingObserver()
	r := NewRenderer(nil, NewCache(WithObserver(obs)), nil)
	opts := Options{Cache: true, Filename: "greeting", Locals: map[string]any{"name": "Ann"}}

	first, err := r.Render("Hello <%= name %>", opts)
	if err != nil {
		t.Fatalf("first Render failed: %v", err)
	}
	second, err := r.Render("Bye <%= name %>", opts)
	if err != nil {
		t.Fatalf("second Render failed: %v", err)
	}
	if first != "Hello Ann" || second != "Hello Ann" {
		t.Fatalf("expected the cached template to be reused, got %q and %q", first, second)
	}
	if obs.misses["greeting"] != 1 || obs.hits["greeting"] != 1 {
		t.Errorf("expected 1 miss and 1 hit, got %d and %d", obs.misses["greeting"], obs.hits["greeting"])
	}

	uncached, err := r.Render("Bye <%= name %>", Options{Locals: opts.Locals})
	if err != nil {
		t.Fatalf("uncached Render failed: %v", err)
	}
	if uncached != "Bye Ann" {
		t.Errorf("expected an uncached render to compile fresh, got %q", uncached)
	}

	r.ClearCache()
	if r.Cache().Len() != 0 {
		t.Fatalf("expected an empty cache after ClearCache, got %d", r.Cache().Len())
	}
	third, err := r.Render("Bye <%= name %>", opts)
	if err != nil {
		t.Fatalf("third Render failed: %v", err)
	}
	if third != "Bye Ann" {
		t.Errorf("expected a recompile after ClearCache, got %q", third)
	}
}

func TestRenderIdempotent(t *testing.T) {
	r, _ := newTestRenderer(t)
	src := "<% var total = 0; for (x of xs) { total += x } %><%= total %>"
	opts := Options{Locals: map[string]any{"xs": []int{1, 2, 3}}, Cache: true, Filename: "sum"}
	for i := 0; i < 3; i++ {
		got, err := r.Render(src, opts)
		if err != nil {
			t.Fatalf("Render %d failed: %v", i, err)
		}
		if got != "6" {
			t.Fatalf("Render %d: expected 6, got %q", i, got)
		}
	}
}

func TestRenderReceiver(t *testing.T) {
	r, _ := newTestRenderer(t)

	got, err := r.Render("<%= this.Title %>", Options{Scope: page{Title: "scope"}})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "scope" {
		t.Errorf("expected Scope to be the receiver, got %q", got)
	}

	got, err = r.Render("<%= this.Title %>", Options{Context: &page{Title: "context"}, Scope: page{Title: "scope"}})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "context" {
		t.Errorf("expected Context to win over Scope, got %q", got)
	}
}

func TestRenderDebug(t *testing.T) {
	r, logs := newTestRenderer(t)
	if _, err := r.Render("Hi <%= name %>", Options{Debug: true, Filename: "hi.ejs", Locals: map[string]any{"name": "x"}}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := logs.String()
	if !strings.Contains(out, "Generated template code") || !strings.Contains(out, "filename=hi.ejs") {
		t.Errorf("expected the generated code to be logged, got %q", out)
	}
	if !strings.Contains(out, "escape( name )") {
		t.Errorf("expected the code attribute in the log, got %q", out)
	}

	logs.Reset()
	if _, err := r.Render("Hi", Options{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(logs.String(), "Generated template code") {
		t.Errorf("expected no code logged without Debug, got %q", logs.String())
	}
}

func TestRenderConcurrentCache(t *testing.T) {
	r, _ := newTestRenderer(t)
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opts := Options{Cache: true, Filename: "shared", Locals: map[string]any{"i": i}}
			got, err := r.Render("<%= i %>", opts)
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprint(i); got != want {
				errs <- fmt.Errorf("expected %s, got %s", want, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if r.Cache().Len() != 1 {
		t.Errorf("expected one cache entry, got %d", r.Cache().Len())
	}
}

func TestPackageLevelCache(t *testing.T) {
	t.Cleanup(ClearCache)
	opts := Options{Cache: true, Filename: "pkg-level"}
	if got, _ := Render("one", opts); got != "one" {
		t.Fatalf("expected one, got %q", got)
	}
	if got, _ := Render("two", opts); got != "one" {
		t.Fatalf("expected the cached one, got %q", got)
	}
	ClearCache()
	if got, _ := Render("two", opts); got != "two" {
		t.Fatalf("expected two after ClearCache, got %q", got)
	}
}

func TestCacheCompileAndDeletePrefix(t *testing.T) {
	c := NewCache()
	a, err := c.Compile("page@1", "A", Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	b, err := c.Compile("page@1", "B", Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if a != b || b.Source() != "A" {
		t.Fatalf("expected the first template back, got source %q", b.Source())
	}
	if _, err := c.Compile("page@2", "C", Options{}); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := c.Compile("other@1", "D", Options{}); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if n := c.DeletePrefix("page@"); n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "other@1" {
		t.Errorf("expected only other@1 left, got %v", keys)
	}
}

func TestCacheCompileUsesOwner(t *testing.T) {
	c := NewCache()
	r := NewRenderer(nil, c, &Config{MaxLoopIterations: 10})
	NewRenderer(nil, c, nil)

	tmpl, err := c.Compile("loop", "<% while (true) { } %>", Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err = tmpl.Execute(nil, nil); !errors.Is(err, script.ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
	if r.Cache() != c {
		t.Error("expected the renderer to keep the injected cache")
	}
}
