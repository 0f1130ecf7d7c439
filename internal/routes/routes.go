package routes

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Route maps one same-origin endpoint onto a fixed backend path.
//
// Path uses echo parameters ("/api/tracks/:id"), Upstream uses placeholders
// with the same names ("/api/tracks/{id}/"). PassStatus relays the upstream
// error status instead of 500. Dashboard routes require a dashboard session.
type Route struct {
	Name       string `yaml:"name"`
	Method     string `yaml:"method"`
	Path       string `yaml:"path"`
	Upstream   string `yaml:"upstream"`
	PassStatus bool   `yaml:"pass_status"`
	Dashboard  bool   `yaml:"dashboard"`
}

type Table []Route

var (
	ErrInvalidRoute = errors.New("invalid route")

	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
)

// Params returns the names of the path parameters of r.Path in order.
func (r Route) Params() []string {
	var out []string
	for _, seg := range strings.Split(r.Path, "/") {
		if strings.HasPrefix(seg, ":") {
			out = append(out, seg[1:])
		}
	}
	return out
}

// Placeholders returns the names referenced by r.Upstream in order.
func (r Route) Placeholders() []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(r.Upstream, -1) {
		out = append(out, m[1])
	}
	return out
}

// Expand substitutes values into the upstream template. escape is applied to
// every value.
func (r Route) Expand(values map[string]string, escape func(string) string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(r.Upstream, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok || v == "" {
			missing = append(missing, name)
			return m
		}
		return escape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing path parameter %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func (t Table) Validate() error {
	seen := make(map[string]string, len(t))
	var errs []error
	for i, r := range t {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if !slices.Contains(methods, r.Method) {
			errs = append(errs, fmt.Errorf("%w %s: unsupported method %q", ErrInvalidRoute, label, r.Method))
		}
		if !strings.HasPrefix(r.Path, "/") || !strings.HasPrefix(r.Upstream, "/") {
			errs = append(errs, fmt.Errorf("%w %s: path and upstream must be absolute", ErrInvalidRoute, label))
		}
		params := r.Params()
		for _, p := range r.Placeholders() {
			if !slices.Contains(params, p) {
				errs = append(errs, fmt.Errorf("%w %s: upstream placeholder {%s} has no path parameter", ErrInvalidRoute, label, p))
			}
		}
		id := r.Method + " " + r.Path
		if prev, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("%w %s: duplicates %s (%s)", ErrInvalidRoute, label, prev, id))
		}
		seen[id] = label
	}
	return errors.Join(errs...)
}

type file struct {
	Routes Table `yaml:"routes"`
}

// Load reads a YAML route table of the form {routes: [...]}.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	for i := range f.Routes {
		f.Routes[i].Method = strings.ToUpper(strings.TrimSpace(f.Routes[i].Method))
	}
	if err := f.Routes.Validate(); err != nil {
		return nil, err
	}
	return f.Routes, nil
}
