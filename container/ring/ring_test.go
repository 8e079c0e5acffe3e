package ring

import (
	"testing"

	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

func TestBuffer_AppendEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Append(i)
	}
	require.Equal(t, 3, b.Len())
	assert.DeepEqual(t, []int{3, 4, 5}, b.Items())
}

func TestBuffer_Newest(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 6; i++ {
		b.Append(i)
	}
	assert.DeepEqual(t, []int{5, 6}, b.Newest(2))
	assert.DeepEqual(t, []int{3, 4, 5, 6}, b.Newest(10))
}

func TestBuffer_ResizeKeepsNewest(t *testing.T) {
	b := New[int](5)
	for i := 1; i <= 5; i++ {
		b.Append(i)
	}
	b.Resize(2)
	require.Equal(t, 2, b.Cap())
	assert.DeepEqual(t, []int{4, 5}, b.Items())

	// Growing keeps everything and leaves room for more.
	b.Resize(4)
	b.Append(6)
	assert.DeepEqual(t, []int{4, 5, 6}, b.Items())
}

func TestBuffer_ItemsIsACopy(t *testing.T) {
	b := New[int](2)
	b.Append(1)
	items := b.Items()
	items[0] = 99
	assert.DeepEqual(t, []int{1}, b.Items())
}
