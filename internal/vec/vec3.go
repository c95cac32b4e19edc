package vec

import "fmt"

// Размеры чанка. Чанк всегда кубический, сторона = 1 << ChunkShift.
const (
	ChunkShift  = 4
	ChunkSize   = 1 << ChunkShift // 16
	ChunkMask   = ChunkSize - 1
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize // 4096
)

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется и для глобальных координат блоков, и для координат чанков.
type Vec3 struct {
	X int
	Y int
	Z int
}

// ToChunkCoords преобразует глобальные координаты блока в координаты чанка.
// Арифметический сдвиг округляет вниз, поэтому -1 попадает в чанк -1, а не 0.
func (v Vec3) ToChunkCoords() Vec3 {
	return Vec3{X: v.X >> ChunkShift, Y: v.Y >> ChunkShift, Z: v.Z >> ChunkShift}
}

// LocalInChunk возвращает локальные координаты внутри чанка (0..15 по каждой оси)
func (v Vec3) LocalInChunk() Vec3 {
	return Vec3{X: v.X & ChunkMask, Y: v.Y & ChunkMask, Z: v.Z & ChunkMask}
}

// ChunkOrigin возвращает глобальные координаты угла чанка с координатами v
func (v Vec3) ChunkOrigin() Vec3 {
	return Vec3{X: v.X << ChunkShift, Y: v.Y << ChunkShift, Z: v.Z << ChunkShift}
}

// FromChunkLocal собирает глобальные координаты из координат чанка и локальных
func FromChunkLocal(chunk, local Vec3) Vec3 {
	return chunk.ChunkOrigin().Add(local)
}

// OnChunkBoundary сообщает, лежит ли локальная координата на грани чанка
func (v Vec3) OnChunkBoundary() bool {
	l := v.LocalInChunk()
	return l.X == 0 || l.X == ChunkMask ||
		l.Y == 0 || l.Y == ChunkMask ||
		l.Z == 0 || l.Z == ChunkMask
}

// DistanceSquared возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceSquared(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// ChebyshevDistance возвращает расстояние по максимальной оси.
// Для чанков это "радиус куба", в котором лежит другой чанк.
func (v Vec3) ChebyshevDistance(other Vec3) int {
	return max(abs(v.X-other.X), abs(v.Y-other.Y), abs(v.Z-other.Z))
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Axis возвращает компоненту по индексу оси (0=X, 1=Y, 2=Z)
func (v Vec3) Axis(axis int) int {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// WithAxis возвращает копию вектора с заменённой компонентой
func (v Vec3) WithAxis(axis, value int) Vec3 {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

// Neighbor возвращает соседнюю по грани позицию в направлении dir
func (v Vec3) Neighbor(dir Direction) Vec3 {
	return v.Add(dir.Offset())
}

// String нужен для логов и ключей хранилищ
func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
