package main

import (
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/mesh"
	"github.com/annel0/voxel-world/internal/vec"
)

// logRenderer рендерер без GPU: хранит счётчики и пишет загрузки в лог
type logRenderer struct {
	quads  map[vec.Vec3]int
	logger *logging.Logger
}

func newLogRenderer(logger *logging.Logger) *logRenderer {
	return &logRenderer{quads: make(map[vec.Vec3]int), logger: logger}
}

func (r *logRenderer) Upload(coord vec.Vec3, m *mesh.Mesh) {
	r.quads[coord] = len(m.Quads)
	r.logger.Debug("⬆️ Меш %v: квадов %d, вершин %d, поколение %d, digest %016x",
		coord, len(m.Quads), m.VertexCount(), m.Generation, m.Digest())
}

func (r *logRenderer) Retire(coord vec.Vec3) {
	delete(r.quads, coord)
	r.logger.Debug("⬇️ Меш %v снят", coord)
}

// Quads суммарное число квадов загруженных мешей
func (r *logRenderer) Quads() int {
	n := 0
	for _, q := range r.quads {
		n += q
	}
	return n
}
