package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencer(t *testing.T) {
	var s Sequencer

	first := s.Next()
	assert.True(t, s.Current(first))

	second := s.Next()
	assert.False(t, s.Current(first))
	assert.True(t, s.Current(second))

	s.Invalidate()
	assert.False(t, s.Current(second))
}
