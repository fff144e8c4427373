package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// reader wraps viper with the defaulting helpers every loader in this
// package shares.  Invalid values fall back to the default.
type reader struct{ v *viper.Viper }

func (r reader) str(k, d string) string {
	if s := strings.TrimSpace(r.v.GetString(k)); s != "" {
		return s
	}
	return d
}

func (r reader) boolean(k string, d bool) bool {
	switch r.str(k, "") {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func (r reader) integer(k string, d int) int {
	if n, err := strconv.Atoi(r.str(k, "")); err == nil {
		return n
	}
	return d
}

func (r reader) dur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(r.str(k, "")); err == nil {
		return dur
	}
	return d
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
