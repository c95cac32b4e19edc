package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkDecompositionNegative(t *testing.T) {
	cases := []struct {
		pos   Vec3
		chunk Vec3
		local Vec3
	}{
		{Vec3{0, 0, 0}, Vec3{0, 0, 0}, Vec3{0, 0, 0}},
		{Vec3{15, 16, 17}, Vec3{0, 1, 1}, Vec3{15, 0, 1}},
		{Vec3{-1, -16, -17}, Vec3{-1, -1, -2}, Vec3{15, 0, 15}},
		{Vec3{-33, 5, -15}, Vec3{-3, 0, -1}, Vec3{15, 5, 1}},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.chunk, tc.pos.ToChunkCoords(), "чанк для %v", tc.pos)
		assert.Equal(t, tc.local, tc.pos.LocalInChunk(), "локальные координаты для %v", tc.pos)
		assert.Equal(t, tc.pos, FromChunkLocal(tc.chunk, tc.local), "обратное преобразование для %v", tc.pos)
	}
}

func TestDirectionHelpers(t *testing.T) {
	for _, d := range AllDirections {
		assert.Equal(t, d, d.Opposite().Opposite())
		assert.Equal(t, Vec3{}, d.Offset().Add(d.Opposite().Offset()), "сдвиги противоположных граней должны гаситься")
		assert.Equal(t, d, DirectionFrom(d.Axis(), d.Positive()))
	}
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 4}, Vec3{X: 1, Y: 2, Z: 3}.Neighbor(PosZ))
}

func TestOnChunkBoundary(t *testing.T) {
	assert.True(t, Vec3{X: 0, Y: 5, Z: 5}.OnChunkBoundary())
	assert.True(t, Vec3{X: 5, Y: -1, Z: 5}.OnChunkBoundary())
	assert.False(t, Vec3{X: 5, Y: 6, Z: 7}.OnChunkBoundary())
	assert.Equal(t, 3, Vec3{}.ChebyshevDistance(Vec3{X: -3, Y: 1, Z: 2}))
}
