package block

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/voxel-world/internal/vec"
)

// ErrInvalidRegistry возвращается, если каталог блоков нарушает базовые инварианты
// (нет id 0, id 0 твёрдый, дубликаты). Такая ошибка фатальна при старте.
var ErrInvalidRegistry = errors.New("некорректный реестр блоков")

// Registry неизменяемый каталог свойств блоков.
// Создаётся один раз при старте и дальше только читается, поэтому безопасен
// для одновременного чтения из любых горутин без блокировок.
type Registry struct {
	props map[BlockID]Properties
	ids   []BlockID // отсортированы по возрастанию
}

// NewRegistry проверяет каталог и строит реестр.
func NewRegistry(defs []Properties) (*Registry, error) {
	r := &Registry{props: make(map[BlockID]Properties, len(defs))}

	for _, p := range defs {
		if _, dup := r.props[p.ID]; dup {
			return nil, fmt.Errorf("%w: блок %d объявлен дважды", ErrInvalidRegistry, p.ID)
		}
		if p.Collision.Kind == ShapeCustom && p.Collision.ShapeID == 0 {
			return nil, fmt.Errorf("%w: блок %d (%s) с произвольной формой без shape_id", ErrInvalidRegistry, p.ID, p.Name)
		}
		r.props[p.ID] = p
		r.ids = append(r.ids, p.ID)
	}

	air, ok := r.props[AirBlockID]
	if !ok {
		return nil, fmt.Errorf("%w: отсутствует блок воздуха (id 0)", ErrInvalidRegistry)
	}
	if air.Solid {
		return nil, fmt.Errorf("%w: блок воздуха (id 0) не может быть твёрдым", ErrInvalidRegistry)
	}

	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })
	return r, nil
}

// MustNewRegistry как NewRegistry, но паникует при ошибке (для тестов и констант)
func MustNewRegistry(defs []Properties) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(err)
	}
	return r
}

// Get возвращает свойства блока
func (r *Registry) Get(id BlockID) (Properties, bool) {
	p, ok := r.props[id]
	return p, ok
}

// IsValidBlockID проверяет, зарегистрирован ли идентификатор
func (r *Registry) IsValidBlockID(id BlockID) bool {
	_, ok := r.props[id]
	return ok
}

// IsSolid сообщает, твёрдый ли блок. Незарегистрированные id считаются воздухом.
func (r *Registry) IsSolid(id BlockID) bool {
	return r.props[id].Solid
}

// RendersFace сообщает, рисуется ли грань dir у блока id
func (r *Registry) RendersFace(id BlockID, dir vec.Direction) bool {
	p, ok := r.props[id]
	return ok && p.Solid && p.Faces.Has(dir)
}

// CollisionShape возвращает форму коллизии блока
func (r *Registry) CollisionShape(id BlockID) CollisionShape {
	return r.props[id].Collision
}

// IDs возвращает все идентификаторы в порядке возрастания
func (r *Registry) IDs() []BlockID {
	out := make([]BlockID, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len возвращает число зарегистрированных блоков
func (r *Registry) Len() int {
	return len(r.ids)
}

// DefaultRegistry возвращает встроенный каталог стандартных блоков.
func DefaultRegistry() *Registry {
	return MustNewRegistry(DefaultBlocks())
}

// DefaultBlocks описывает встроенные блоки
func DefaultBlocks() []Properties {
	cube := CollisionShape{Kind: ShapeFullCube}
	return []Properties{
		{ID: AirBlockID, Name: "air"},
		{ID: StoneBlockID, Name: "stone", Solid: true, Faces: AllFaces, Collision: cube},
		{ID: GrassBlockID, Name: "grass", Solid: true, Faces: AllFaces, Collision: cube},
		{ID: WaterBlockID, Name: "water"},
		{ID: SandBlockID, Name: "sand", Solid: true, Faces: AllFaces, Collision: cube},
		{ID: DirtBlockID, Name: "dirt", Solid: true, Faces: AllFaces, Collision: cube},
		{ID: FlowerBlockID, Name: "flower"},
		{ID: TreeBlockID, Name: "tree", Solid: true, Faces: AllFaces, Collision: cube},
		{ID: CactusBlockID, Name: "cactus", Solid: true, Faces: AllFaces,
			Collision: CollisionShape{Kind: ShapeCustom, ShapeID: 1}},
		{ID: ChestBlockID, Name: "chest", Solid: true, Faces: AllFaces, Collision: cube},
		{ID: DoorBlockID, Name: "door", Solid: true, Faces: FacesOf(vec.NegZ, vec.PosZ),
			Collision: CollisionShape{Kind: ShapeCustom, ShapeID: 2}},
		{ID: PortalBlockID, Name: "portal"},
		{ID: SpawnerBlockID, Name: "spawner", Solid: true, Faces: AllFaces, Collision: cube},
	}
}
