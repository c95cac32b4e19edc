package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

func TestCollisionShapeAt(t *testing.T) {
	reg := block.DefaultRegistry()
	w := world.NewWorld(reg, world.Options{})
	require.NoError(t, w.SetBlock(vec.Vec3{X: 1}, block.StoneBlockID))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 2}, block.DoorBlockID))

	assert.Equal(t, block.ShapeNone, CollisionShapeAt(w, reg, vec.Vec3{}).Kind, "воздух без формы")
	assert.Equal(t, block.ShapeFullCube, CollisionShapeAt(w, reg, vec.Vec3{X: 1}).Kind)

	door := CollisionShapeAt(w, reg, vec.Vec3{X: 2})
	assert.Equal(t, block.ShapeCustom, door.Kind)
	assert.Equal(t, ShapeDoor, door.ShapeID)

	// форма вычисляется заново после изменения блока
	require.NoError(t, w.SetBlock(vec.Vec3{X: 1}, block.AirBlockID))
	assert.Equal(t, block.ShapeNone, CollisionShapeAt(w, reg, vec.Vec3{X: 1}).Kind)
}

func TestCanOccupy(t *testing.T) {
	reg := block.DefaultRegistry()
	w := world.NewWorld(reg, world.Options{})
	require.NoError(t, w.SetBlock(vec.Vec3{X: 0, Y: 0, Z: 0}, block.StoneBlockID))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 3, Y: 0, Z: 0}, block.DoorBlockID))

	player := func(x, z float64) AABB {
		return NewAABB(vec.Vec3Float{X: x, Y: 0, Z: z}, 0.6, 1.8)
	}

	assert.False(t, CanOccupy(w, reg, player(0.5, 0.5)), "внутри камня")
	assert.True(t, CanOccupy(w, reg, player(1.5, 0.5)), "рядом с камнем")
	assert.True(t, CanOccupy(w, reg, player(-1.5, -1.5)), "отрицательные координаты")
	assert.False(t, CanOccupy(w, reg, player(3.5, 0.1)), "в плите двери")
	assert.True(t, CanOccupy(w, reg, player(3.5, 0.6)), "за плитой двери")
}

func TestEntityIndex(t *testing.T) {
	idx := NewEntityIndex()
	idx.Place(7, vec.Vec3Float{X: 0.5, Y: 0, Z: 0.5})
	idx.Place(3, vec.Vec3Float{X: 0.9, Y: 0, Z: 0.5})

	reg := block.DefaultRegistry()
	cell, ok := BlockAABB(reg, block.StoneBlockID, vec.Vec3{})
	require.True(t, ok)
	assert.True(t, idx.Overlaps(cell))
	assert.Equal(t, []uint64{3, 7}, idx.Colliding(cell))

	above, _ := BlockAABB(reg, block.StoneBlockID, vec.Vec3{Y: 2})
	assert.False(t, idx.Overlaps(above), "над головой свободно")

	_, ok = BlockAABB(reg, block.FlowerBlockID, vec.Vec3{})
	assert.False(t, ok, "цветок не имеет формы")

	idx.Remove(7)
	idx.Remove(3)
	assert.False(t, idx.Overlaps(cell))
	assert.Equal(t, 0, idx.Len())
}
