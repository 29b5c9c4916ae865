package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:    true,
		{StatusPending, StatusCancelled}:     true,
		{StatusProcessing, StatusCompleted}:  true,
		{StatusProcessing, StatusFailed}:     true,
		{StatusProcessing, StatusCancelled}:  true,
		{StatusFailed, StatusPending}:        true,
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())

	assert.True(t, StatusPending.IsCancellable())
	assert.True(t, StatusProcessing.IsCancellable())
	assert.False(t, StatusFailed.IsCancellable())
	assert.False(t, StatusCompleted.IsCancellable())

	assert.True(t, StatusFailed.IsValid())
	assert.False(t, Status("DONE").IsValid())
}
