package geometry

import (
	"errors"
	"testing"

	"github.com/annel0/plotmines/internal/vec"
	"github.com/annel0/plotmines/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveVolume_BlockCount(t *testing.T) {
	origin := world.NewPosition(100.7, 64, -20.2, "world")

	for _, size := range []struct{ width, depth int }{
		{1, 1}, {2, 3}, {5, 5}, {16, 9}, {31, 32},
	} {
		v, err := DeriveVolume(origin, size.width, size.depth)
		require.NoError(t, err)

		assert.Equal(t, size.width*size.depth*MineHeight, BlockCount(v), "width=%d depth=%d", size.width, size.depth)
		assert.Equal(t, "world", v.Min.Region)
		assert.Equal(t, "world", v.Max.Region)
		assert.LessOrEqual(t, v.Min.X, v.Max.X)
		assert.LessOrEqual(t, v.Min.Y, v.Max.Y)
		assert.LessOrEqual(t, v.Min.Z, v.Max.Z)
	}
}

func TestDeriveVolume_BelowOrigin(t *testing.T) {
	v, err := DeriveVolume(world.NewPosition(0, 64, 0, "world"), 5, 5)
	require.NoError(t, err)

	assert.Equal(t, float64(63), v.Max.Y, "верх шахты прямо под точкой создания")
	assert.Equal(t, float64(64-MineHeight), v.Min.Y)
	assert.True(t, v.Contains(world.NewPosition(0, 63, 0, "world")))
	assert.False(t, v.Contains(world.NewPosition(0, 64, 0, "world")))
}

func TestDeriveVolume_InvalidDimensions(t *testing.T) {
	origin := world.NewPosition(0, 64, 0, "world")

	for _, size := range []struct{ width, depth int }{{0, 5}, {5, 0}, {-1, 3}, {3, -7}} {
		_, err := DeriveVolume(origin, size.width, size.depth)
		assert.True(t, errors.Is(err, ErrInvalidTemplate), "width=%d depth=%d", size.width, size.depth)
	}
}

func TestNormalize(t *testing.T) {
	a := world.NewPosition(10, 5, -3, "world")
	b := world.NewPosition(-2, 9, 4, "world")

	v, err := Normalize(a, b)
	require.NoError(t, err)
	assert.Equal(t, world.NewPosition(-2, 5, -3, "world"), v.Min)
	assert.Equal(t, world.NewPosition(10, 9, 4, "world"), v.Max)
	assert.Equal(t, 13*5*8, BlockCount(v))

	_, err = Normalize(a, world.NewPosition(0, 0, 0, "nether"))
	assert.True(t, errors.Is(err, ErrCrossRegion))
}

func TestForEach_VisitsEveryCellOnce(t *testing.T) {
	v, err := Normalize(world.NewPosition(0, 0, 0, "w"), world.NewPosition(3, 2, 4, "w"))
	require.NoError(t, err)

	seen := make(map[vec.Vec3]int)
	v.ForEach(func(p world.Position) {
		seen[p.Block()]++
		assert.True(t, v.Contains(p))
	})

	assert.Len(t, seen, BlockCount(v))
	for pos, n := range seen {
		assert.Equal(t, 1, n, "клетка %v посещена %d раз", pos, n)
	}
}

func TestForEachFace(t *testing.T) {
	v, err := Normalize(world.NewPosition(0, 0, 0, "w"), world.NewPosition(4, 4, 4, "w"))
	require.NoError(t, err)

	seen := make(map[vec.Vec3]int)
	v.ForEachFace(func(p world.Position) {
		seen[p.Block()]++
	})

	assert.Len(t, seen, FaceCount(v))
	assert.Equal(t, 125-27, FaceCount(v))
	for pos, n := range seen {
		assert.Equal(t, 1, n)
		onFace := pos.X == 0 || pos.X == 4 || pos.Y == 0 || pos.Y == 4 || pos.Z == 0 || pos.Z == 4
		assert.True(t, onFace, "клетка %v не на грани", pos)
	}
}

func TestForEachFace_Thin(t *testing.T) {
	// Плоский объём целиком состоит из граней
	v, err := Normalize(world.NewPosition(0, 0, 0, "w"), world.NewPosition(3, 0, 2, "w"))
	require.NoError(t, err)

	count := 0
	v.ForEachFace(func(world.Position) { count++ })
	assert.Equal(t, BlockCount(v), count)
}

func TestInterior(t *testing.T) {
	v, err := DeriveVolume(world.NewPosition(0, 64, 0, "w"), 5, 7)
	require.NoError(t, err)

	in := v.Interior()
	assert.Equal(t, 3*(MineHeight-1)*5, BlockCount(in))
	assert.Equal(t, v.Max.Y, in.Max.Y, "верхний слой открыт")

	narrow, err := DeriveVolume(world.NewPosition(0, 64, 0, "w"), 2, 9)
	require.NoError(t, err)
	assert.True(t, narrow.Interior().IsEmpty())

	count := 0
	narrow.Interior().ForEach(func(world.Position) { count++ })
	assert.Zero(t, count)
}

func TestContains_OtherRegion(t *testing.T) {
	v, err := DeriveVolume(world.NewPosition(0, 64, 0, "w"), 3, 3)
	require.NoError(t, err)
	assert.False(t, v.Contains(world.NewPosition(0, 60, 0, "other")))
}
