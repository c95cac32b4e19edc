package mesh

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// ErrNoCenter снимок не содержит центрального чанка
var ErrNoCenter = errors.New("снимок без центрального чанка")

// Builder строит меши по снимкам. Безопасен для одновременного использования
// из нескольких горутин: реестр неизменяем, состояния нет.
type Builder struct {
	registry *block.Registry
}

// NewBuilder создаёт построитель для заданного реестра блоков
func NewBuilder(registry *block.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build строит меш центрального чанка.
//
// Грань твёрдого блока попадает в меш, если блок её рисует и соседний блок
// (в том числе в соседнем чанке) не твёрдый. Отсутствующий соседний чанк
// считается пустым. Видимые грани каждого среза сливаются жадно: сначала
// вдоль первичной оси U, затем полученная полоса растягивается по V.
// Порядок обхода: направления в порядке vec.AllDirections, затем срез, V, U.
func (b *Builder) Build(n world.Neighborhood) (*Mesh, error) {
	if n.Center == nil {
		return nil, ErrNoCenter
	}

	m := &Mesh{Coords: n.Center.Coords, Generation: n.Center.Generation}

	var mask [vec.ChunkSize][vec.ChunkSize]block.BlockID
	for _, dir := range vec.AllDirections {
		axis := dir.Axis()
		u := (axis + 1) % 3
		v := (axis + 2) % 3
		step := dir.Offset()

		for slice := 0; slice < vec.ChunkSize; slice++ {
			// Маска видимых граней среза: [v][u] -> тип блока (0 = грани нет)
			for j := 0; j < vec.ChunkSize; j++ {
				for i := 0; i < vec.ChunkSize; i++ {
					pos := vec.Vec3{}.WithAxis(axis, slice).WithAxis(u, i).WithAxis(v, j)
					id := n.Center.Get(pos)
					if !b.registry.RendersFace(id, dir) || b.registry.IsSolid(n.BlockAt(pos.Add(step))) {
						mask[j][i] = block.AirBlockID
						continue
					}
					mask[j][i] = id
				}
			}

			for j := 0; j < vec.ChunkSize; j++ {
				for i := 0; i < vec.ChunkSize; {
					id := mask[j][i]
					if id == block.AirBlockID {
						i++
						continue
					}

					w := 1
					for i+w < vec.ChunkSize && mask[j][i+w] == id {
						w++
					}

					h := 1
				grow:
					for j+h < vec.ChunkSize {
						for k := 0; k < w; k++ {
							if mask[j+h][i+k] != id {
								break grow
							}
						}
						h++
					}

					for dj := 0; dj < h; dj++ {
						for di := 0; di < w; di++ {
							mask[j+dj][i+di] = block.AirBlockID
						}
					}

					origin := vec.Vec3{}.WithAxis(axis, slice).WithAxis(u, i).WithAxis(v, j)
					m.addQuad(Quad{Dir: dir, Block: id, Origin: origin, Width: w, Height: h})
					i += w
				}
			}
		}
	}

	return m, nil
}

// addQuad добавляет прямоугольник и его вершины.
// Обход вершин против часовой стрелки, если смотреть снаружи грани.
func (m *Mesh) addQuad(q Quad) {
	axis := q.Dir.Axis()
	u := (axis + 1) % 3
	v := (axis + 2) % 3

	base := q.Origin
	if q.Dir.Positive() {
		base = base.WithAxis(axis, base.Axis(axis)+1)
	}
	du := vec.Vec3{}.WithAxis(u, q.Width)
	dv := vec.Vec3{}.WithAxis(v, q.Height)

	corners := [4]vec.Vec3{base, base.Add(du), base.Add(du).Add(dv), base.Add(dv)}
	uvs := [4]mgl32.Vec2{
		{0, 0},
		{float32(q.Width), 0},
		{float32(q.Width), float32(q.Height)},
		{0, float32(q.Height)},
	}
	if !q.Dir.Positive() {
		corners[1], corners[3] = corners[3], corners[1]
		uvs[1], uvs[3] = uvs[3], uvs[1]
	}

	off := q.Dir.Offset()
	normal := mgl32.Vec3{float32(off.X), float32(off.Y), float32(off.Z)}

	start := uint32(len(m.Positions))
	for k := 0; k < 4; k++ {
		c := corners[k]
		m.Positions = append(m.Positions, mgl32.Vec3{float32(c.X), float32(c.Y), float32(c.Z)})
		m.Normals = append(m.Normals, normal)
		m.UVs = append(m.UVs, uvs[k])
		m.Blocks = append(m.Blocks, q.Block)
	}
	m.Indices = append(m.Indices, start, start+1, start+2, start, start+2, start+3)
	m.Quads = append(m.Quads, q)
}
