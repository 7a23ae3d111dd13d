package layout

import "math"

// quadNode is a Barnes-Hut cell. Leaves hold at most one body; coincident
// bodies beyond the depth limit are merged into the leaf's mass.
type quadNode struct {
	x, y, size float64

	cx, cy float64
	mass   float64

	body     int
	leaf     bool
	children [4]*quadNode
}

const quadMaxDepth = 24

func newQuadNode(x, y, size float64) *quadNode {
	return &quadNode{x: x, y: y, size: size, leaf: true, body: -1}
}

func buildQuadTree(nodes []Node) *quadNode {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		minX = math.Min(minX, n.X)
		minY = math.Min(minY, n.Y)
		maxX = math.Max(maxX, n.X)
		maxY = math.Max(maxY, n.Y)
	}
	size := math.Max(maxX-minX, maxY-minY) + 1
	root := newQuadNode(minX, minY, size)
	for i, n := range nodes {
		root.insert(i, n.X, n.Y, 1, 0)
	}
	return root
}

func (q *quadNode) insert(i int, px, py, m float64, depth int) {
	if q.leaf && q.body == -1 && q.mass == 0 {
		q.body = i
		q.cx, q.cy = px, py
		q.mass = m
		return
	}

	if q.leaf {
		if depth >= quadMaxDepth {
			total := q.mass + m
			q.cx = (q.cx*q.mass + px*m) / total
			q.cy = (q.cy*q.mass + py*m) / total
			q.mass = total
			return
		}
		q.leaf = false
		old, ox, oy, om := q.body, q.cx, q.cy, q.mass
		q.body = -1
		q.child(ox, oy).insert(old, ox, oy, om, depth+1)
	}

	total := q.mass + m
	q.cx = (q.cx*q.mass + px*m) / total
	q.cy = (q.cy*q.mass + py*m) / total
	q.mass = total
	q.child(px, py).insert(i, px, py, m, depth+1)
}

func (q *quadNode) child(px, py float64) *quadNode {
	half := q.size / 2
	idx := 0
	cx, cy := q.x, q.y
	if px >= q.x+half {
		idx |= 1
		cx += half
	}
	if py >= q.y+half {
		idx |= 2
		cy += half
	}
	if q.children[idx] == nil {
		q.children[idx] = newQuadNode(cx, cy, half)
	}
	return q.children[idx]
}

// force accumulates the velocity change on body i at (px, py). strength is
// already multiplied by alpha and is negative for repulsion.
func (q *quadNode) force(i int, px, py, theta, strength float64, j *jiggler) (float64, float64) {
	if q == nil || q.mass == 0 {
		return 0, 0
	}
	if q.leaf && q.body == i && q.mass == 1 {
		return 0, 0
	}

	dx := q.cx - px
	dy := q.cy - py
	l := dx*dx + dy*dy

	if q.leaf || q.size*q.size/theta/theta < l {
		if q.leaf && q.body == i {
			// Merged leaf containing i: exclude i's own mass.
			return 0, 0
		}
		if dx == 0 {
			dx = j.next()
			l += dx * dx
		}
		if dy == 0 {
			dy = j.next()
			l += dy * dy
		}
		if l < 1 {
			l = math.Sqrt(l)
		}
		w := strength * q.mass / l
		return dx * w, dy * w
	}

	var fx, fy float64
	for _, c := range q.children {
		if c == nil {
			continue
		}
		cfx, cfy := c.force(i, px, py, theta, strength, j)
		fx += cfx
		fy += cfy
	}
	return fx, fy
}
