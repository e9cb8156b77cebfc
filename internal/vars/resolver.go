package vars

import (
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

// Set holds variable values by bare name (no braces).
type Set map[string]string

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Lookup matches name exactly and case-sensitively. Keys saved with stray
// braces ("{{token}}") match their bare name.
func (s Set) Lookup(name string) (string, bool) {
	if v, ok := s[name]; ok {
		return v, true
	}
	for k, v := range s {
		if normalizeKey(k) == name {
			return v, true
		}
	}
	return "", false
}

func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Bare returns the name a stored key answers to, without stray braces.
func Bare(k string) string {
	return normalizeKey(k)
}

func normalizeKey(k string) string {
	k = strings.TrimSpace(k)
	k = strings.TrimPrefix(k, "{{")
	k = strings.TrimSuffix(k, "}}")
	return strings.TrimSpace(k)
}

var (
	templateVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	// One scan covers every stage so substituted values are never rescanned.
	tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}|:([A-Za-z_][A-Za-z0-9_]*)`)
)

var (
	firstNames = []string{"Alice", "Bob", "Carol", "David", "Emma", "Frank", "Grace", "Henry", "Ivy", "Jack"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Wilson", "Moore"}
)

type Option func(*Resolver)

// WithClock pins the time used by $timestamp and $isoTimestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRand pins the source behind the $random* tokens.
func WithRand(src rand.Source) Option {
	return func(r *Resolver) {
		if src != nil {
			r.rng = rand.New(src)
		}
	}
}

type Resolver struct {
	now func() time.Time
	mu  sync.Mutex
	rng *rand.Rand
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultResolver = NewResolver()

// Resolve substitutes text using the default resolver.
func Resolve(text string, set Set, req *restfile.Request) string {
	return defaultResolver.Resolve(text, set, req)
}

// Resolve replaces {{$dynamic}} tokens, then {{name}} variables from set,
// then :name path params of req. Path params are only considered when req
// is non-nil. Unknown tokens stay as written.
func (r *Resolver) Resolve(text string, set Set, req *restfile.Request) string {
	if !strings.Contains(text, "{{") && (req == nil || !strings.Contains(text, ":")) {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		if strings.HasPrefix(match, "{{") {
			return r.expandTemplate(match, set)
		}
		if req == nil {
			return match
		}
		value, ok := req.PathParam(match[1:])
		if !ok || value == "" {
			return match
		}
		// Path values may carry their own templates but no path tokens.
		return r.Resolve(value, set, nil)
	})
}

// ResolveTemplates is Resolve without path params.
func (r *Resolver) ResolveTemplates(text string, set Set) string {
	return r.Resolve(text, set, nil)
}

func (r *Resolver) expandTemplate(match string, set Set) string {
	sub := templateVarPattern.FindStringSubmatch(match)
	if len(sub) < 2 {
		return match
	}
	// Names match exactly; {{ a }} is not {{a}}.
	name := sub[1]
	if strings.TrimSpace(name) == "" {
		return match
	}
	if strings.HasPrefix(name, "$") {
		if value, ok := r.dynamic(name); ok {
			return value
		}
		return match
	}
	if value, ok := set.Lookup(name); ok {
		return value
	}
	return match
}

func (r *Resolver) dynamic(name string) (string, bool) {
	switch name {
	case "$timestamp":
		return strconv.FormatInt(r.now().Unix(), 10), true
	case "$isoTimestamp":
		return r.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"), true
	case "$randomUUID":
		return uuid.NewString(), true
	case "$randomInt":
		return strconv.Itoa(r.intn(1000)), true
	case "$randomBool":
		return strconv.FormatBool(r.intn(2) == 1), true
	case "$randomEmail":
		return "user" + strconv.Itoa(r.intn(10000)) + "@example.com", true
	case "$randomFirstName":
		return firstNames[r.intn(len(firstNames))], true
	case "$randomLastName":
		return lastNames[r.intn(len(lastNames))], true
	default:
		return "", false
	}
}

func (r *Resolver) intn(n int) int {
	if r.rng == nil {
		return rand.IntN(n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

// Unresolved lists placeholders left in text: {{name}} variables and
// :name path tokens, each once, in order of appearance.
func Unresolved(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tok string) {
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	for _, m := range templateVarPattern.FindAllStringSubmatch(text, -1) {
		if strings.TrimSpace(m[1]) != "" {
			add(m[0])
		}
	}
	for _, tok := range restfile.PathTokens(text) {
		add(":" + tok)
	}
	return out
}
