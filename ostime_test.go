package microkern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUptime_TickSequence walks the tick forward 100 ticks at a time
// and checks the derived uptime sequence at the default 1000 ticks per
// second.
func TestUptime_TickSequence(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	want := []TimeVal{
		{0, 100_000}, {0, 200_000}, {0, 300_000}, {0, 400_000},
		{0, 500_000}, {0, 600_000}, {0, 700_000}, {0, 800_000},
		{0, 900_000}, {1, 0}, {1, 100_000},
	}
	for _, w := range want {
		k.TickAdvance(100)
		assert.Equal(t, w, k.Uptime())
	}
}

func TestSetTimeOfDay_BothNil(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	assert.ErrorIs(t, k.SetTimeOfDay(nil, nil), ErrInvalidParam)
}

// TestSetTimeOfDay_Listeners registers two listeners and checks that
// both fire in registration order, with NewlySynced true only on the
// first successful set.
func TestSetTimeOfDay_Listeners(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	var fired []string
	var changes []TimeChange
	l1 := &TimeChangeListener{Fn: func(ch TimeChange) {
		fired = append(fired, "L1")
		changes = append(changes, ch)
	}}
	l2 := &TimeChangeListener{Fn: func(ch TimeChange) {
		fired = append(fired, "L2")
		changes = append(changes, ch)
	}}
	require.NoError(t, k.TimeChangeListen(l1))
	require.NoError(t, k.TimeChangeListen(l2))

	require.False(t, k.IsTimeSet())
	require.NoError(t, k.SetTimeOfDay(&TimeVal{Sec: 1_700_000_000}, &TimeZone{}))
	require.True(t, k.IsTimeSet())

	require.Equal(t, []string{"L1", "L2"}, fired)
	require.Len(t, changes, 2)
	for _, ch := range changes {
		assert.True(t, ch.NewlySynced)
		assert.Equal(t, int64(1_700_000_000), ch.NewTime.Sec)
		assert.Equal(t, int64(0), ch.PrevTime.Sec)
	}

	fired, changes = nil, nil
	require.NoError(t, k.SetTimeOfDay(&TimeVal{Sec: 1_700_000_100}, nil))
	require.Equal(t, []string{"L1", "L2"}, fired)
	for _, ch := range changes {
		assert.False(t, ch.NewlySynced)
		assert.Equal(t, int64(1_700_000_000), ch.PrevTime.Sec)
		assert.Equal(t, int64(1_700_000_100), ch.NewTime.Sec)
	}
}

// TestSetTimeOfDay_GetReturnsSet checks the set/get law: with no ticks
// elapsing between the calls, TimeOfDay returns exactly the value set.
func TestSetTimeOfDay_GetReturnsSet(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	k.TickAdvance(1234)
	set := TimeVal{Sec: 1_700_000_000, Usec: 250_000}
	tz := TimeZone{MinutesWest: -600, DstTime: 1}
	require.NoError(t, k.SetTimeOfDay(&set, &tz))

	got, gotTz := k.TimeOfDay()
	assert.Equal(t, set, got)
	assert.Equal(t, tz, gotTz)

	// Ticks keep the clock moving from the new base.
	k.TickAdvance(1500)
	got, _ = k.TimeOfDay()
	assert.Equal(t, TimeVal{Sec: 1_700_000_001, Usec: 750_000}, got)
}

// TestSetTimeOfDay_TimezoneOnly leaves the wall-clock untouched when
// only the timezone is supplied.
func TestSetTimeOfDay_TimezoneOnly(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	require.NoError(t, k.SetTimeOfDay(&TimeVal{Sec: 1_700_000_000}, nil))
	k.TickAdvance(2000)

	require.NoError(t, k.SetTimeOfDay(nil, &TimeZone{MinutesWest: 300}))
	got, tz := k.TimeOfDay()
	assert.Equal(t, int64(1_700_000_002), got.Sec)
	assert.Equal(t, int32(300), tz.MinutesWest)
}

func TestTimeChangeListen_Duplicate(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	l := &TimeChangeListener{Fn: func(TimeChange) {}}
	require.NoError(t, k.TimeChangeListen(l))
	assert.ErrorIs(t, k.TimeChangeListen(l), ErrInvalidParam)

	kd, err := New(WithDebugMode(true))
	require.NoError(t, err)
	require.NoError(t, kd.TimeChangeListen(l))
	assert.Panics(t, func() { _ = kd.TimeChangeListen(l) })
}

func TestTimeChangeRemove(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	l := &TimeChangeListener{Fn: func(TimeChange) {}}
	assert.ErrorIs(t, k.TimeChangeRemove(l), ErrNotFound)

	require.NoError(t, k.TimeChangeListen(l))
	require.NoError(t, k.TimeChangeRemove(l))
	assert.ErrorIs(t, k.TimeChangeRemove(l), ErrNotFound)

	// A removed listener no longer fires.
	fired := false
	l.Fn = func(TimeChange) { fired = true }
	require.NoError(t, k.SetTimeOfDay(&TimeVal{Sec: 1}, nil))
	assert.False(t, fired)
}

func TestTimeChangeListen_InvalidParam(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	assert.ErrorIs(t, k.TimeChangeListen(nil), ErrInvalidParam)
	assert.ErrorIs(t, k.TimeChangeListen(&TimeChangeListener{}), ErrInvalidParam)
}
