package policy

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoolCodec(t *testing.T) {
	c := boolCodec()

	for _, in := range []string{"true", "YES", "on", "1", " y "} {
		v, err := c.parse(in)
		require.NoError(t, err, in)
		assert.True(t, v, in)
	}
	for _, in := range []string{"false", "No", "off", "0"} {
		v, err := c.parse(in)
		require.NoError(t, err, in)
		assert.False(t, v, in)
	}
	_, err := c.parse("perhaps")
	assert.Error(t, err)
}

func TestIntListCodec_Syntax(t *testing.T) {
	c := intListCodec()

	for _, in := range []string{"1,2,3", "[1, 2, 3]", "1 2 3", "[1;2;3]"} {
		v, err := c.parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, []int{1, 2, 3}, v, in)
	}
	assert.Equal(t, "[1, 2, 3]", c.format([]int{1, 2, 3}))
}

func TestTimeListCodec(t *testing.T) {
	c := timeListCodec()

	times, err := c.parse("21:30, 09:00:00, 09:00")
	require.NoError(t, err)

	assert.Equal(t, []civil.Time{
		{Hour: 9, Minute: 0, Second: 0},
		{Hour: 21, Minute: 30, Second: 0},
	}, times)
	assert.Equal(t, "09:00:00, 21:30:00", c.format(times))

	empty, err := c.parse("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDecimalCodec_KeepsInBoundValues(t *testing.T) {
	c := decimalCodec(2, true)

	v, err := c.parse("12.5")
	require.NoError(t, err)
	v, repaired := c.repair(v)

	assert.False(t, repaired)
	assert.Equal(t, "12.50", c.format(v))
}

func TestIntCodec_Bounds(t *testing.T) {
	v, repaired := intCodec(boundNone).repair(-5)
	assert.Equal(t, -5, v)
	assert.False(t, repaired)

	v, repaired = intCodec(boundMinusOne).repair(-1)
	assert.Equal(t, -1, v)
	assert.False(t, repaired)
}
