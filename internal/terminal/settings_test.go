package terminal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLiveSettingsWatch(t *testing.T) {
	l := NewLiveSettings(DefaultSettings())
	assert.Equal(t, 14, l.Load().FontSize)

	var seen []int
	cancel := l.Watch(func(s Settings) { seen = append(seen, s.FontSize) })

	l.Update(func(s *Settings) { s.FontSize = 16 })
	l.Store(Settings{FontSize: 12})
	cancel()
	cancel()
	l.Update(func(s *Settings) { s.FontSize = 20 })

	assert.Equal(t, []int{16, 12}, seen)
	assert.Equal(t, 20, l.Load().FontSize)
}

func TestTimingsWithDefaults(t *testing.T) {
	got := Timings{QuietPeriod: time.Second}.withDefaults()
	want := DefaultTimings()
	want.QuietPeriod = time.Second
	assert.Equal(t, want, got)

	d := DefaultTimings()
	assert.Equal(t, 500*time.Millisecond, d.QuietPeriod)
	assert.Equal(t, 150*time.Millisecond, d.ResizeDelay)
	assert.Equal(t, 100*time.Millisecond, d.ReconnectWindow)
	assert.Equal(t, 30*time.Second, d.HealthInterval)
}
