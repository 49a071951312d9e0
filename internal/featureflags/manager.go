// Package featureflags evaluates runtime toggles for optional forum and sheet features.
package featureflags

import (
	"hash/fnv"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Known flags.
const (
	// ForumSeed exposes POST /api/forum/seed to admins.
	ForumSeed = "forum_seed"
	// SheetGeneration gates the SSE generation endpoint.
	SheetGeneration = "sheet_generation"
	// ForumRealtime gates vote/comment fan-out over the forum websocket.
	ForumRealtime = "forum_realtime"
)

var defaults = map[string]string{
	ForumSeed:       "off",
	SheetGeneration: "on",
	ForumRealtime:   "on",
}

// rule is a parsed flag value: the share of users, 0..100, that get the
// feature. Unparseable values become 0.
type rule struct {
	raw     string
	percent int
}

func parseRule(v string) rule {
	r := rule{raw: v}
	switch v {
	case "on", "true", "1":
		r.percent = 100
	case "off", "false", "0":
	default:
		if n, ok := strings.CutSuffix(v, "%"); ok {
			if pct, err := strconv.Atoi(n); err == nil {
				r.percent = min(max(pct, 0), 100)
			}
		}
	}
	return r
}

// Manager holds flags parsed from FEATURE_FLAGS, e.g.
// "forum_seed=on,sheet_generation=25%,forum_realtime=off".
// Values are on/off (true/false, 1/0) or a percentage rolled out by user ID.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw on top of the built-in defaults. Malformed pairs
// are ignored.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule, len(defaults))}
	for name, v := range defaults {
		m.rules[name] = parseRule(v)
	}
	for pair := range strings.SplitSeq(raw, ",") {
		name, v, ok := strings.Cut(pair, "=")
		name, v = normalize(name), normalize(v)
		if !ok || name == "" || v == "" {
			continue
		}
		m.rules[name] = parseRule(v)
	}
	return m
}

// Enabled reports whether name is on for userID. Partial rollouts need a
// signed-in user; the bucket is stable per (flag, user).
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == 0:
		return false
	}
	return bucket(name, userID) < r.percent
}

// Raw returns the configured values, defaults included.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func (m *Manager) Names() []string {
	return slices.Sorted(maps.Keys(m.rules))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	h.Write([]byte(normalize(name)))
	h.Write([]byte{':'})
	h.Write(strconv.AppendUint(nil, uint64(userID), 10))
	return int(h.Sum32() % 100)
}
