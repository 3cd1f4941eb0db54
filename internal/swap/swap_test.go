package swap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	d := New(2)

	a, err := d.Alloc()
	require.NoError(t, err)
	b, err := d.Alloc()
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = d.Alloc()
	require.ErrorIs(t, err, ErrFull)

	d.Free(a)
	c, err := d.Alloc()
	require.NoError(t, err)
	require.Equal(t, a, c)
	require.Equal(t, uint(2), d.Used())
	_ = b
}

func TestWriteThenReadRoundTripsBytes(t *testing.T) {
	d := New(1)
	slot, err := d.Alloc()
	require.NoError(t, err)

	page := make([]byte, PageSize)
	page[0] = 0xFE
	page[PageSize-1] = 0x07
	require.NoError(t, d.WriteSlot(slot, page))

	out := make([]byte, PageSize)
	require.NoError(t, d.ReadSlot(slot, out))
	require.Equal(t, page, out)
}

func TestReadWriteRejectsOutOfRangeSlot(t *testing.T) {
	d := New(1)
	buf := make([]byte, PageSize)
	require.ErrorIs(t, d.ReadSlot(5, buf), ErrBadSlot)
	require.ErrorIs(t, d.WriteSlot(-1, buf), ErrBadSlot)
}
