package physics

import (
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// AABB выровненный по осям параллелепипед в мировых координатах
type AABB struct {
	Min vec.Vec3Float
	Max vec.Vec3Float
}

// NewAABB создаёт бокс по центру основания и размерам (ширина по X/Z, высота по Y)
func NewAABB(feet vec.Vec3Float, width, height float64) AABB {
	half := width / 2
	return AABB{
		Min: vec.Vec3Float{X: feet.X - half, Y: feet.Y, Z: feet.Z - half},
		Max: vec.Vec3Float{X: feet.X + half, Y: feet.Y + height, Z: feet.Z + half},
	}
}

// Intersects проверяет пересечение с другим боксом (касание не считается)
func (a AABB) Intersects(b AABB) bool {
	return a.Min.X < b.Max.X && a.Max.X > b.Min.X &&
		a.Min.Y < b.Max.Y && a.Max.Y > b.Min.Y &&
		a.Min.Z < b.Max.Z && a.Max.Z > b.Min.Z
}

// Empty бокс нулевого объёма
func (a AABB) Empty() bool {
	return a.Max.X <= a.Min.X || a.Max.Y <= a.Min.Y || a.Max.Z <= a.Min.Z
}

// Offset сдвигает бокс
func (a AABB) Offset(d vec.Vec3Float) AABB {
	return AABB{Min: a.Min.Add(d), Max: a.Max.Add(d)}
}

// Идентификаторы нестандартных форм столкновения
const (
	ShapeCactus uint16 = 1 // узкий столб
	ShapeDoor   uint16 = 2 // тонкая плита вдоль оси Z
)

// customShapes формы в локальных координатах блока [0,1]³
var customShapes = map[uint16]AABB{
	ShapeCactus: {Min: vec.Vec3Float{X: 0.0625, Z: 0.0625}, Max: vec.Vec3Float{X: 0.9375, Y: 1, Z: 0.9375}},
	ShapeDoor:   {Min: vec.Vec3Float{}, Max: vec.Vec3Float{X: 1, Y: 1, Z: 0.1875}},
}

// ShapeAABB бокс формы в локальных координатах блока; ok=false для пустой формы
func ShapeAABB(shape block.CollisionShape) (AABB, bool) {
	switch shape.Kind {
	case block.ShapeFullCube:
		return AABB{Max: vec.Vec3Float{X: 1, Y: 1, Z: 1}}, true
	case block.ShapeCustom:
		box, ok := customShapes[shape.ShapeID]
		if !ok {
			// неизвестная форма сталкивается как полный куб
			return AABB{Max: vec.Vec3Float{X: 1, Y: 1, Z: 1}}, true
		}
		return box, true
	default:
		return AABB{}, false
	}
}

// CollisionShapeAt форма столкновения блока в позиции. Считается по запросу,
// ничего не кеширует.
func CollisionShapeAt(reader world.BlockReader, registry *block.Registry, pos vec.Vec3) block.CollisionShape {
	return registry.CollisionShape(reader.GetBlock(pos))
}

// BlockAABB мировой бокс блока id, если бы он стоял в pos
func BlockAABB(registry *block.Registry, id block.BlockID, pos vec.Vec3) (AABB, bool) {
	box, ok := ShapeAABB(registry.CollisionShape(id))
	if !ok {
		return AABB{}, false
	}
	return box.Offset(vec.FromVec3(pos)), true
}

// CanOccupy проверяет, что бокс не пересекается ни с одним блоком мира
func CanOccupy(reader world.BlockReader, registry *block.Registry, box AABB) bool {
	lo := box.Min.ToVec3()
	hi := box.Max.ToVec3()
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				pos := vec.Vec3{X: x, Y: y, Z: z}
				bb, ok := BlockAABB(registry, reader.GetBlock(pos), pos)
				if ok && bb.Intersects(box) {
					return false
				}
			}
		}
	}
	return true
}
