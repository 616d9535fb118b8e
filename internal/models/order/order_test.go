package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	statuses := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusCanceled}

	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCanceled}:     true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusCanceled}:  true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusCanceled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("shipped").Valid())
	assert.False(t, Status("").Valid())
}
