// Package history keeps the bounded per-second price series of one chain.
package history

// MaxPoints is the maximum number of buckets a Buffer retains.
const MaxPoints = 100

// Point is one per-second bucket. Buckets produced by Append are flat:
// Open, High, Low and Close all carry the same price.
type Point struct {
	TimeSec int64   `json:"time"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
}

func flatPoint(timeSec int64, price float64) Point {
	return Point{TimeSec: timeSec, Open: price, High: price, Low: price, Close: price}
}

// Buffer is an immutable series of Points with strictly increasing TimeSec.
// Append never modifies the receiver, so a Buffer can be shared between
// snapshots without copying.
type Buffer struct {
	points []Point
}

// Len returns the number of buckets.
func (b Buffer) Len() int {
	return len(b.points)
}

// Points returns a copy of the buckets, oldest first.
func (b Buffer) Points() []Point {
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

// Last returns the newest bucket.
func (b Buffer) Last() (Point, bool) {
	if len(b.points) == 0 {
		return Point{}, false
	}
	return b.points[len(b.points)-1], true
}

// Append records price at atTimeSec and returns the resulting buffer.
//
// Every integer second in (t_last, atTimeSec] receives a flat bucket at
// price, so gaps between irregular arrivals are filled forward. On an empty
// buffer t_last is atTimeSec-1, giving exactly one bucket. Samples at or
// before t_last are dropped and reported with accepted=false; the returned
// buffer is then the receiver unchanged.
func (b Buffer) Append(price float64, atTimeSec int64) (next Buffer, accepted bool) {
	tLast := atTimeSec - 1
	if last, ok := b.Last(); ok {
		tLast = last.TimeSec
	}
	if atTimeSec <= tLast {
		return b, false
	}

	gap := atTimeSec - tLast
	keep := len(b.points)
	if gap >= MaxPoints {
		// the fill alone covers the whole window
		keep = 0
	} else if keep+int(gap) > MaxPoints {
		keep = MaxPoints - int(gap)
	}

	start := tLast + 1
	if atTimeSec-start+1 > MaxPoints {
		start = atTimeSec - MaxPoints + 1
	}

	points := make([]Point, 0, keep+int(atTimeSec-start+1))
	points = append(points, b.points[len(b.points)-keep:]...)
	for t := start; t <= atTimeSec; t++ {
		points = append(points, flatPoint(t, price))
	}
	return Buffer{points: points}, true
}

// FromPoints builds a buffer from stored buckets, keeping only a strictly
// increasing run and at most the newest MaxPoints entries.
func FromPoints(points []Point) Buffer {
	clean := make([]Point, 0, len(points))
	for _, p := range points {
		if n := len(clean); n > 0 && p.TimeSec <= clean[n-1].TimeSec {
			continue
		}
		clean = append(clean, p)
	}
	if len(clean) > MaxPoints {
		clean = clean[len(clean)-MaxPoints:]
	}
	return Buffer{points: clean}
}
