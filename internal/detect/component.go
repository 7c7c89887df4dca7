package detect

import (
	"github.com/Wang-bp/AR-Detection/internal/grid"
)

// labelComponents partitions cells at or above the threshold into maximal
// connected components under the given connectivity. Components are
// discovered in row-major scan order and cells within a component are
// emitted in BFS order, so labeling is fully deterministic.
func labelComponents(field *grid.Field, threshold float64, connectivity int) [][]grid.CellIndex {
	rows, cols := field.Rows(), field.Cols()
	visited := make([]bool, rows*cols)
	var components [][]grid.CellIndex

	masked := func(c grid.CellIndex) bool {
		return field.Finite(c) && field.At(c) >= threshold
	}

	scratch := make([]grid.CellIndex, 0, 8)
	for r := 0; r < rows; r++ {
		for col := 0; col < cols; col++ {
			seed := grid.CellIndex{Row: r, Col: col}
			if visited[r*cols+col] || !masked(seed) {
				continue
			}

			// BFS flood fill from the seed.
			component := []grid.CellIndex{seed}
			visited[r*cols+col] = true
			for head := 0; head < len(component); head++ {
				scratch = field.Neighbors(component[head], connectivity, scratch[:0])
				for _, n := range scratch {
					idx := n.Row*cols + n.Col
					if visited[idx] || !masked(n) {
						continue
					}
					visited[idx] = true
					component = append(component, n)
				}
			}
			components = append(components, component)
		}
	}
	return components
}
