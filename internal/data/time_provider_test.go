package data

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedTimeProvider(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixedTimeProvider(start)
	assert.Equal(t, start, clock.Now())

	clock.AddTime(time.Hour)
	assert.Equal(t, start.Add(time.Hour), clock.Now())

	clock.SetTime(start)
	assert.Equal(t, start, clock.Now())
}

func TestFixedTimeProviderConcurrentAccess(t *testing.T) {
	clock := NewFixedTimeProvider(time.Unix(0, 0).UTC())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				clock.AddTime(time.Second)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, time.Unix(800, 0).UTC(), clock.Now())
}

func TestTimeProviderFunc(t *testing.T) {
	at := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	var tp TimeProvider = TimeProviderFunc(func() time.Time { return at })
	assert.Equal(t, at, tp.Now())
}
