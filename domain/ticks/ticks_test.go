package ticks

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTicks(t *testing.T) {
	c := MustConverter("0.01")
	cases := map[string]int64{
		"1.10": 110,
		"1.1":  110,
		"0.9":  90,
		"140":  14000,
		"0":    0,
		"-0.5": -50,
	}
	for in, want := range cases {
		got, err := c.ToTicks(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestToTicksRejects(t *testing.T) {
	c := MustConverter("0.05")

	_, err := c.ToTicks("1.07")
	assert.True(t, errors.Is(err, ErrNotTickMultiple))

	_, err = c.ToTicks("abc")
	assert.Error(t, err)

	_, err = MustConverter("1").ToTicks("100000000000000000000")
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.10", MustConverter("0.01").Format(110))
	assert.Equal(t, "0.90", MustConverter("0.01").Format(90))
	assert.Equal(t, "1.15", MustConverter("0.05").Format(23))
	assert.Equal(t, "25", MustConverter("5").Format(5))
}

func TestNewConverterRejects(t *testing.T) {
	for _, in := range []string{"", "0", "-0.01", "x"} {
		_, err := NewConverter(in)
		assert.Error(t, err, in)
	}
}
