package world

import "github.com/annel0/voxel-world/internal/vec"

// Anchor точка, вокруг которой мир держит чанки загруженными (игрок, камера, спаун).
// Чанки подгружаются в пределах Radius и выгружаются только дальше MaxRadius,
// поэтому якорь на границе чанка не гоняет крайний слой туда-обратно.
type Anchor struct {
	Position vec.Vec3 // глобальная позиция в блоках
	Radius   int      // радиус загрузки в чанках (куб со стороной 2*Radius+1)
	// MaxRadius радиус удержания; меньше Radius означает Radius
	MaxRadius int
}

func (a Anchor) keepRadius() int {
	return max(a.Radius, a.MaxRadius)
}

// Covers проверяет, попадает ли чанк в зону загрузки якоря
func (a Anchor) Covers(chunk vec.Vec3) bool {
	return a.Position.ToChunkCoords().ChebyshevDistance(chunk) <= a.Radius
}

// Keeps проверяет, удерживает ли якорь уже загруженный чанк
func (a Anchor) Keeps(chunk vec.Vec3) bool {
	return a.Position.ToChunkCoords().ChebyshevDistance(chunk) <= a.keepRadius()
}

// AnchorUpdate итог обновления якорей
type AnchorUpdate struct {
	Loaded   []vec.Vec3
	Unloaded []vec.Vec3
	// Pinned чанки вне якорей, которые нельзя выгрузить без потери данных
	Pinned []vec.Vec3
}

// UpdateAnchors загружает все чанки в зонах загрузки якорей и выгружает чанки,
// которые не удерживает ни один якорь. Пустой список якорей ничего не выгружает.
// Чанк с блоками без хранилища (или с несохранившимися изменениями) остаётся в памяти.
func (w *World) UpdateAnchors(anchors []Anchor) AnchorUpdate {
	var upd AnchorUpdate
	if len(anchors) == 0 {
		return upd
	}

	for _, coord := range w.LoadedChunks() {
		if keptByAny(anchors, coord) {
			continue
		}
		if !w.evictable(w.chunks[coord]) {
			upd.Pinned = append(upd.Pinned, coord)
			continue
		}
		w.UnloadChunk(coord)
		upd.Unloaded = append(upd.Unloaded, coord)
	}

	wanted := make(map[vec.Vec3]struct{})
	for _, a := range anchors {
		center := a.Position.ToChunkCoords()
		for dx := -a.Radius; dx <= a.Radius; dx++ {
			for dy := -a.Radius; dy <= a.Radius; dy++ {
				for dz := -a.Radius; dz <= a.Radius; dz++ {
					wanted[center.Add(vec.Vec3{X: dx, Y: dy, Z: dz})] = struct{}{}
				}
			}
		}
	}

	missing := make([]vec.Vec3, 0)
	for coord := range wanted {
		if _, ok := w.chunks[coord]; !ok {
			missing = append(missing, coord)
		}
	}
	sortCoords(missing)
	for _, coord := range missing {
		w.LoadChunk(coord)
		upd.Loaded = append(upd.Loaded, coord)
	}

	if len(upd.Loaded)+len(upd.Unloaded) > 0 {
		w.logger.Debug("Якоря: загружено %d, выгружено %d, удержано %d, всего чанков %d",
			len(upd.Loaded), len(upd.Unloaded), len(upd.Pinned), len(w.chunks))
	}
	return upd
}

func keptByAny(anchors []Anchor, coord vec.Vec3) bool {
	for _, a := range anchors {
		if a.Keeps(coord) {
			return true
		}
	}
	return false
}

// evictable сохраняет чанк и сообщает, можно ли его выгрузить без потери блоков
func (w *World) evictable(c *Chunk) bool {
	if w.store == nil {
		return c.IsEmpty()
	}
	if !c.unsaved {
		return true
	}
	return w.saveChunk(c)
}
