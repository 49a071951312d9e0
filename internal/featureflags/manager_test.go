package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabledBooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabledPercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,junk=abc%")

	assert.True(t, m.Enabled("always", 1))
	assert.False(t, m.Enabled("never", 1))
	assert.False(t, m.Enabled("junk", 1))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout evaluation must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", 0), "percentage rollout requires non-zero userID")
}

func TestDefaults(t *testing.T) {
	m := NewManager("")
	assert.False(t, m.Enabled(ForumSeed, 1))
	assert.True(t, m.Enabled(SheetGeneration, 1))
	assert.True(t, m.Enabled(ForumRealtime, 1))

	m = NewManager("FORUM_SEED=on, sheet_generation = off")
	assert.True(t, m.Enabled(ForumSeed, 1))
	assert.False(t, m.Enabled(SheetGeneration, 1))
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off ")

	raw := m.Raw()
	assert.Equal(t, "on", raw["x"])
	assert.Equal(t, "20%", raw["y"])
	assert.Equal(t, "off", raw["z"])
	assert.NotContains(t, raw, "bad")
	assert.Len(t, raw, 3+len(defaults))

	snap := m.Snapshot(123)
	assert.Len(t, snap, len(raw))
	assert.Equal(t, []string{ForumRealtime, ForumSeed, SheetGeneration, "x", "y", "z"}, m.Names())
}

func TestRolloutShareIsRoughlyRespected(t *testing.T) {
	m := NewManager("canary=30%,over=150%,under=-5%")

	on := 0
	for id := uint(1); id <= 1000; id++ {
		if m.Enabled("canary", id) {
			on++
		}
	}
	assert.InDelta(t, 300, on, 60)
	assert.True(t, m.Enabled("over", 7))
	assert.False(t, m.Enabled("under", 7))
}
