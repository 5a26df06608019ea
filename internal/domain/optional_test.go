package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat_Comparisons(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Float
		greater bool
		less    bool
	}{
		{"both defined, greater", Some(2), Some(1), true, false},
		{"both defined, less", Some(1), Some(2), false, true},
		{"equal", Some(1), Some(1), false, false},
		{"left missing", None(), Some(1), false, false},
		{"right missing", Some(1), None(), false, false},
		{"both missing", None(), None(), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.greater, tt.a.GreaterThan(tt.b))
			assert.Equal(t, tt.less, tt.a.LessThan(tt.b))
		})
	}
}

func TestFloat_MaxMinMid(t *testing.T) {
	assert.Equal(t, Some(3), Some(1).Max(Some(3)))
	assert.Equal(t, Some(1), Some(1).Min(Some(3)))
	assert.Equal(t, Some(2), Some(1).Mid(Some(3)))

	assert.False(t, Some(1).Max(None()).Valid)
	assert.False(t, None().Min(Some(1)).Valid)
	assert.False(t, None().Mid(Some(1)).Valid)
}

func TestFloat_PtrRoundTrip(t *testing.T) {
	assert.Nil(t, None().Ptr())
	assert.Equal(t, None(), FromPtr(nil))

	p := Some(4.5).Ptr()
	if assert.NotNil(t, p) {
		assert.Equal(t, 4.5, *p)
	}
	assert.Equal(t, Some(4.5), FromPtr(p))
	assert.Equal(t, "", None().String())
	assert.Equal(t, "4.5", Some(4.5).String())
}
