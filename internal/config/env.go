package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env wraps a lookup function with typed getters.  Malformed values fall
// back to the default except for required variables, whose problems are
// collected and reported by err.
type env struct {
	lookup   func(string) (string, bool)
	problems []string
}

func osEnv() env { return env{lookup: os.LookupEnv} }

func (e *env) get(key string) string {
	v, ok := e.lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) must(key string) string {
	v := e.get(key)
	if v == "" {
		e.fail("missing required env var: %s", key)
	}
	return v
}

func (e *env) int(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail("invalid int for %s: %q", key, v)
		return def
	}
	return n
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail("invalid duration for %s: %q", key, v)
		return def
	}
	return d
}

func (e *env) bool(key string, def bool) bool {
	switch strings.ToLower(e.get(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func (e *env) fail(format string, args ...any) {
	e.problems = append(e.problems, fmt.Sprintf(format, args...))
}

func (e *env) err() error {
	if len(e.problems) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(e.problems, "; "))
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
