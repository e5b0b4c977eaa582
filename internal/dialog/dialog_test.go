package dialog

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllClosed(t *testing.T) {
	o := New()
	snap, err := o.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[Name]bool{Second: false, Success: false, Fund: false}, snap)
}

func TestCloseIdempotent(t *testing.T) {
	o := New()
	before, _ := o.State(Success)

	require.NoError(t, o.Close(Success))
	require.NoError(t, o.Close(Success))

	after, err := o.State(Success)
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.False(t, after.IsOpen)
}

func TestSetOpenReportsChange(t *testing.T) {
	o := New()

	changed, err := o.SetOpen(Fund, true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = o.SetOpen(Fund, true)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMultipleDialogsMayBeOpen(t *testing.T) {
	o := New()
	require.NoError(t, o.Open(Second))
	require.NoError(t, o.Open(Success))

	open, _ := o.IsOpen(Second)
	assert.True(t, open)
	open, _ = o.IsOpen(Success)
	assert.True(t, open)
}

func TestStateStableWhenOtherDialogToggles(t *testing.T) {
	o := New()
	a, err := o.State(Second)
	require.NoError(t, err)

	require.NoError(t, o.Open(Success))
	require.NoError(t, o.Close(Success))

	again, err := o.State(Second)
	require.NoError(t, err)
	assert.Same(t, a, again)
}

func TestStateReplacedWhenOwnFlagChanges(t *testing.T) {
	o := New()
	a, _ := o.State(Second)

	require.NoError(t, a.SetIsOpen(true))

	b, err := o.State(Second)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.False(t, a.IsOpen)
	assert.True(t, b.IsOpen)
}

func TestNilOrchestratorIsConfigurationError(t *testing.T) {
	var o *Orchestrator

	_, err := o.State(Second)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "dialog state must be used within a provider", cfgErr.Error())

	assert.ErrorIs(t, o.Open(Second), ErrNoProvider)
	assert.ErrorIs(t, o.Close(Second), ErrNoProvider)
	_, err = o.IsOpen(Second)
	assert.ErrorIs(t, err, ErrNoProvider)
	_, err = o.Snapshot()
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.ErrorIs(t, o.CloseAll(), ErrNoProvider)
}

func TestUnknownDialog(t *testing.T) {
	o := New()
	assert.ErrorIs(t, o.Open(Name("confirm")), ErrUnknownDialog)
	_, err := o.State(Name("confirm"))
	assert.ErrorIs(t, err, ErrUnknownDialog)

	_, err = ParseName("confirm")
	assert.ErrorIs(t, err, ErrUnknownDialog)

	n, err := ParseName("success")
	require.NoError(t, err)
	assert.Equal(t, Success, n)
}

func TestCloseAll(t *testing.T) {
	o := New()
	require.NoError(t, o.Open(Second))
	require.NoError(t, o.Open(Fund))
	require.NoError(t, o.CloseAll())

	snap, _ := o.Snapshot()
	for _, v := range snap {
		assert.False(t, v)
	}
}

func TestConcurrentToggles(t *testing.T) {
	o := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = o.SetOpen(Names[i%len(Names)], i%2 == 0)
			_, _ = o.State(Names[i%len(Names)])
		}(i)
	}
	wg.Wait()

	snap, err := o.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap, len(Names))
}
