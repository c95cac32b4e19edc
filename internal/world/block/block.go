package block

import "github.com/annel0/voxel-world/internal/vec"

// BlockID представляет идентификатор блока
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0, всегда пустой и не твёрдый
	StoneBlockID                // 1
	GrassBlockID                // 2
	WaterBlockID                // 3
	SandBlockID                 // 4
	DirtBlockID                 // 5

	// Декоративные блоки (начиная с 100)
	FlowerBlockID BlockID = 100
	TreeBlockID   BlockID = 101
	CactusBlockID BlockID = 102

	// Интерактивные блоки (начиная с 200)
	ChestBlockID BlockID = 200
	DoorBlockID  BlockID = 201

	// Специальные блоки (начиная с 1000)
	PortalBlockID  BlockID = 1000
	SpawnerBlockID BlockID = 1001
)

// FaceSet битовая маска граней, которые блок рисует.
// Бит i соответствует vec.Direction(i).
type FaceSet uint8

// AllFaces все шесть граней
const AllFaces FaceSet = 0x3F

// FacesOf собирает маску из перечисленных граней
func FacesOf(dirs ...vec.Direction) FaceSet {
	var fs FaceSet
	for _, d := range dirs {
		fs |= 1 << d
	}
	return fs
}

// Has проверяет наличие грани в наборе
func (fs FaceSet) Has(d vec.Direction) bool {
	return fs&(1<<d) != 0
}

// ShapeKind тип формы коллизии
type ShapeKind uint8

const (
	ShapeNone     ShapeKind = iota // проходимый
	ShapeFullCube                  // полный куб 1x1x1
	ShapeCustom                    // произвольная форма, описана в физике по ShapeID
)

// CollisionShape описывает форму коллизии блока
type CollisionShape struct {
	Kind    ShapeKind
	ShapeID uint16
}

// Properties свойства типа блока. Поведение блоков задаётся данными, а не кодом.
type Properties struct {
	ID        BlockID
	Name      string
	Solid     bool    // участвует в отсечении граней и мешинге
	Faces     FaceSet // какие грани рисуются у твёрдого блока
	Collision CollisionShape
}
