package vec

// Direction описывает одну из шести граней куба.
// Порядок фиксирован: (ось, знак) = (X,-) (X,+) (Y,-) (Y,+) (Z,-) (Z,+).
// От него зависит порядок обхода в мешере, поэтому менять нельзя.
type Direction uint8

const (
	NegX Direction = iota
	PosX
	NegY
	PosY
	NegZ
	PosZ
)

// AllDirections перечисляет все грани в каноническом порядке
var AllDirections = [6]Direction{NegX, PosX, NegY, PosY, NegZ, PosZ}

var directionOffsets = [6]Vec3{
	{X: -1}, {X: 1},
	{Y: -1}, {Y: 1},
	{Z: -1}, {Z: 1},
}

var directionNames = [6]string{"-X", "+X", "-Y", "+Y", "-Z", "+Z"}

// Offset возвращает единичный сдвиг в направлении грани
func (d Direction) Offset() Vec3 {
	return directionOffsets[d]
}

// Axis возвращает индекс оси нормали (0=X, 1=Y, 2=Z)
func (d Direction) Axis() int {
	return int(d) / 2
}

// Positive сообщает, смотрит ли нормаль в сторону увеличения координаты
func (d Direction) Positive() bool {
	return d%2 == 1
}

// Opposite возвращает противоположную грань
func (d Direction) Opposite() Direction {
	return d ^ 1
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "?"
}

// DirectionFrom собирает направление из оси и знака
func DirectionFrom(axis int, positive bool) Direction {
	d := Direction(axis * 2)
	if positive {
		d++
	}
	return d
}
