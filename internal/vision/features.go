package vision

import "math"

const (
	motionPixelThreshold = 30

	edgeThreshold = 100

	minObjectArea = 1000
	maxObjectArea = 50000

	minObjectAspect = 1.2
	maxObjectAspect = 5.0

	// Anomaly penalties for boxes outside plausible vehicle geometry.
	anomalyAspectLow  = 0.8
	anomalyAspectHigh = 6.0
	anomalyAreaLow    = 2000
	anomalyAreaHigh   = 40000

	debrisScale = 20
)

// Box is a candidate object found by contour extraction.
type Box struct {
	X, Y, W, H int
}

func (b Box) area() int { return b.W * b.H }

func (b Box) aspect() float64 {
	if b.H == 0 {
		return 0
	}
	return float64(b.W) / float64(b.H)
}

func (b Box) center() (float64, float64) {
	return float64(b.X) + float64(b.W)/2, float64(b.Y) + float64(b.H)/2
}

// Features are the cheap per-frame signals feeding the heuristic scorer.
// Derived fresh on every call; MinDistance is +Inf when fewer than two
// candidate objects exist.
type Features struct {
	MotionRatio    float64
	MotionDetected bool
	Objects        []Box
	MinDistance    float64
	AnomalyScore   float64
	DebrisScore    float64
}

func (f Features) ObjectCount() int { return len(f.Objects) }

// Extract computes the heuristic features of frame. prev may be nil (or of
// different dimensions), in which case motion is reported as zero. A zero-sized
// frame yields all-zero features.
func Extract(frame, prev *Frame) Features {
	f := Features{MinDistance: math.Inf(1)}
	if frame.Empty() {
		return f
	}

	gray := frame.Gray()

	if !prev.Empty() && prev.Width == frame.Width && prev.Height == frame.Height {
		f.MotionRatio = motionRatio(gray, prev.Gray())
		f.MotionDetected = f.MotionRatio > 0.01
	}

	f.Objects = findObjects(boxBlur(gray, frame.Width, frame.Height), frame.Width, frame.Height)
	f.AnomalyScore = orientationAnomaly(f.Objects)
	f.DebrisScore = debrisScore(frame)
	f.MinDistance = minCenterDistance(f.Objects)

	return f
}

func motionRatio(cur, prev []uint8) float64 {
	if len(cur) == 0 || len(cur) != len(prev) {
		return 0
	}
	moving := 0
	for i := range cur {
		d := int(cur[i]) - int(prev[i])
		if d < 0 {
			d = -d
		}
		if d > motionPixelThreshold {
			moving++
		}
	}
	return float64(moving) / float64(len(cur))
}

// boxBlur applies a 5x5 mean filter, the smoothing step before edge detection.
func boxBlur(gray []uint8, w, h int) []uint8 {
	out := make([]uint8, len(gray))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -2; dy <= 2; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := -2; dx <= 2; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					sum += int(gray[yy*w+xx])
					n++
				}
			}
			out[y*w+x] = uint8(sum / n)
		}
	}
	return out
}

// edgeMask marks pixels whose Sobel gradient magnitude exceeds edgeThreshold.
func edgeMask(gray []uint8, w, h int) []bool {
	mask := make([]bool, len(gray))
	if w < 3 || h < 3 {
		return mask
	}
	at := func(x, y int) int { return int(gray[y*w+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			if gx+gy >= edgeThreshold {
				mask[y*w+x] = true
			}
		}
	}
	return mask
}

// findObjects runs connected-component labeling over the edge mask and keeps
// components whose bounding box looks vehicle-shaped: enclosed area within
// [minObjectArea, maxObjectArea] and aspect ratio within
// (minObjectAspect, maxObjectAspect).
func findObjects(gray []uint8, w, h int) []Box {
	mask := edgeMask(gray, w, h)
	visited := make([]bool, len(mask))
	var boxes []Box
	var stack []int

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		minX, minY := start%w, start/w
		maxX, maxY := minX, minY
		visited[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < 0 || xx >= w || yy < 0 || yy >= h {
						continue
					}
					n := yy*w + xx
					if mask[n] && !visited[n] {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		box := Box{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}
		if box.area() <= minObjectArea || box.area() >= maxObjectArea {
			continue
		}
		if a := box.aspect(); a <= minObjectAspect || a >= maxObjectAspect {
			continue
		}
		boxes = append(boxes, box)
	}
	return boxes
}

func orientationAnomaly(boxes []Box) float64 {
	score := 0.0
	for _, b := range boxes {
		if a := b.aspect(); a < anomalyAspectLow || a > anomalyAspectHigh {
			score += 0.3
		}
		if area := b.area(); area < anomalyAreaLow || area > anomalyAreaHigh {
			score += 0.2
		}
	}
	return math.Min(score, 1.0)
}

// debrisScore unions a bright/low-saturation mask (glass, metal) with a
// near-black mask (rubber, plastic) and reports the scaled coverage ratio.
func debrisScore(f *Frame) float64 {
	if f.Empty() {
		return 0
	}
	masked := 0
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		r := int(f.Pix[i*3])
		g := int(f.Pix[i*3+1])
		b := int(f.Pix[i*3+2])
		v := max3(r, g, b)
		m := min3(r, g, b)
		var s int
		if v > 0 {
			s = (v - m) * 255 / v
		}
		if (v >= 200 && s <= 30) || v <= 50 {
			masked++
		}
	}
	return math.Min(float64(masked)/float64(n)*debrisScale, 1.0)
}

func minCenterDistance(boxes []Box) float64 {
	if len(boxes) < 2 {
		return math.Inf(1)
	}
	minDist := math.Inf(1)
	for i := 0; i < len(boxes); i++ {
		x1, y1 := boxes[i].center()
		for j := i + 1; j < len(boxes); j++ {
			x2, y2 := boxes[j].center()
			if d := math.Hypot(x1-x2, y1-y2); d < minDist {
				minDist = d
			}
		}
	}
	return minDist
}

func max3(a, b, c int) int {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
