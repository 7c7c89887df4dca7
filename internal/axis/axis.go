// Package axis extracts the ridge line of peak transport through a candidate
// region: the path between the region's two most geodesically distant cells
// that maximises cumulative intensity, constrained to the region.
package axis

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/Wang-bp/AR-Detection/internal/grid"
)

// GeometryError reports a degenerate region during axis extraction. It is
// recovered locally: the detector drops the offending candidate and
// continues with the remaining regions.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("degenerate region: %s", e.Reason)
}

// Axis is the ordered ridge path through a region, oriented from the more
// equatorward terminal cell to the more poleward one.
type Axis struct {
	Cells []grid.CellIndex
}

// LengthKm returns the cumulative great-circle length of the axis.
func (a *Axis) LengthKm(field *grid.Field) float64 {
	var total float64
	for i := 1; i < len(a.Cells); i++ {
		total += field.Distance(a.Cells[i-1], a.Cells[i])
	}
	return total
}

// MeanBearing returns the overall orientation of the axis: the bearing from
// its first cell to its last, in degrees.
func (a *Axis) MeanBearing(field *grid.Field) float64 {
	return field.BearingBetween(a.Cells[0], a.Cells[len(a.Cells)-1])
}

// Options configures extraction. Connectivity must match the connectivity
// the region was labeled under, or terminal cells may be mutually
// unreachable.
type Options struct {
	Connectivity int
	MinCells     int
}

// Extract returns the axis of a region. Regions below MinCells, or whose
// terminal search yields no distinct cell pair, fail with *GeometryError.
func Extract(region []grid.CellIndex, field *grid.Field, opts Options) (*Axis, error) {
	if len(region) < opts.MinCells {
		return nil, &GeometryError{Reason: fmt.Sprintf("%d cells, need at least %d", len(region), opts.MinCells)}
	}

	start, end, err := terminalCells(region, field, opts.Connectivity)
	if err != nil {
		return nil, err
	}

	cells, err := ridgePath(region, field, start, end, opts.Connectivity)
	if err != nil {
		return nil, err
	}

	// Orient equatorward → poleward so the axis progresses along the
	// dominant (meridional) transport direction.
	firstLat, _ := field.LatLon(cells[0])
	lastLat, _ := field.LatLon(cells[len(cells)-1])
	if math.Abs(firstLat) > math.Abs(lastLat) {
		for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
			cells[i], cells[j] = cells[j], cells[i]
		}
	}

	return &Axis{Cells: cells}, nil
}

// terminalCells finds the two most geodesically distant cells of the region.
// Only boundary cells can be terminals, which keeps the pairwise scan cheap
// on large filled regions. Candidate pairs are ordered with the
// lexicographically smaller cell first, and distance ties keep the smallest
// such pair, so the choice is independent of region ordering.
func terminalCells(region []grid.CellIndex, field *grid.Field, connectivity int) (grid.CellIndex, grid.CellIndex, error) {
	inRegion := make(map[grid.CellIndex]bool, len(region))
	for _, c := range region {
		inRegion[c] = true
	}

	var boundary []grid.CellIndex
	scratch := make([]grid.CellIndex, 0, 8)
	for _, c := range region {
		scratch = field.Neighbors(c, connectivity, scratch[:0])
		full := connectivity
		if len(scratch) < full {
			// Grid edge counts as boundary.
			boundary = append(boundary, c)
			continue
		}
		for _, n := range scratch {
			if !inRegion[n] {
				boundary = append(boundary, c)
				break
			}
		}
	}
	if len(boundary) < 2 {
		boundary = region
	}

	var best float64 = -1
	var a, b grid.CellIndex
	for i := 0; i < len(boundary); i++ {
		for j := i + 1; j < len(boundary); j++ {
			p, q := boundary[i], boundary[j]
			if cellLess(q, p) {
				p, q = q, p
			}
			d := field.Distance(p, q)
			if d > best || (d == best && (cellLess(p, a) || (p == a && cellLess(q, b)))) {
				best = d
				a, b = p, q
			}
		}
	}
	if best <= 0 {
		return grid.CellIndex{}, grid.CellIndex{}, &GeometryError{Reason: "no distinct terminal cell pair"}
	}
	return a, b, nil
}

// cellLess orders cells by row, then column.
func cellLess(a, b grid.CellIndex) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

// pathItem is one frontier entry in the ridge search.
type pathItem struct {
	cell       grid.CellIndex
	cost       float64 // accumulated inverse-intensity cost
	bottleneck float64 // minimum intensity along the path so far
	index      int
}

type pathQueue []*pathItem

func (q pathQueue) Len() int { return len(q) }

// Less orders primarily by cumulative cost; near-ties prefer the path with
// the higher minimum intensity, avoiding thin bottlenecks.
func (q pathQueue) Less(i, j int) bool {
	if math.Abs(q[i].cost-q[j].cost) > costTieEps {
		return q[i].cost < q[j].cost
	}
	return q[i].bottleneck > q[j].bottleneck
}
func (q pathQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *pathQueue) Push(x any) {
	item := x.(*pathItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

const costTieEps = 1e-9

// ridgePath runs Dijkstra over the region's adjacency graph. Stepping into a
// cell costs the geodesic step length divided by (1 + intensity), so high
// transport cells are cheap and the minimum-cost path is the maximum
// cumulative transport path.
func ridgePath(region []grid.CellIndex, field *grid.Field, start, end grid.CellIndex, connectivity int) ([]grid.CellIndex, error) {
	inRegion := make(map[grid.CellIndex]bool, len(region))
	for _, c := range region {
		inRegion[c] = true
	}

	dist := make(map[grid.CellIndex]float64, len(region))
	bottle := make(map[grid.CellIndex]float64, len(region))
	prev := make(map[grid.CellIndex]grid.CellIndex, len(region))
	done := make(map[grid.CellIndex]bool, len(region))

	q := &pathQueue{}
	heap.Init(q)
	dist[start] = 0
	bottle[start] = cellIntensity(field, start)
	heap.Push(q, &pathItem{cell: start, cost: 0, bottleneck: bottle[start]})

	scratch := make([]grid.CellIndex, 0, 8)
	for q.Len() > 0 {
		item := heap.Pop(q).(*pathItem)
		if done[item.cell] {
			continue
		}
		done[item.cell] = true
		if item.cell == end {
			break
		}

		scratch = field.Neighbors(item.cell, connectivity, scratch[:0])
		for _, n := range scratch {
			if !inRegion[n] || done[n] {
				continue
			}
			step := field.Distance(item.cell, n)
			intensity := cellIntensity(field, n)
			cost := item.cost + step/(1+intensity)
			nb := math.Min(item.bottleneck, intensity)

			current, seen := dist[n]
			better := !seen || cost < current-costTieEps ||
				(math.Abs(cost-current) <= costTieEps && nb > bottle[n])
			if better {
				dist[n] = cost
				bottle[n] = nb
				prev[n] = item.cell
				heap.Push(q, &pathItem{cell: n, cost: cost, bottleneck: nb})
			}
		}
	}

	if !done[end] {
		return nil, &GeometryError{Reason: "terminal cells not connected within region"}
	}

	// Walk the path backwards from end to start.
	path := []grid.CellIndex{end}
	for path[len(path)-1] != start {
		path = append(path, prev[path[len(path)-1]])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// cellIntensity clamps to zero so negative anomaly values never produce
// negative path costs.
func cellIntensity(field *grid.Field, c grid.CellIndex) float64 {
	v := field.At(c)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
