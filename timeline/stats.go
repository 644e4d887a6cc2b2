package timeline

import (
	"math"
	"sort"
)

// Stats summarises who spoke how much over a timeline.
type Stats struct {
	Start         float64            `json:"start"`
	End           float64            `json:"end"`
	Words         map[string]int     `json:"words"`          // per speaker
	SpeakingShare map[string]float64 `json:"speaking_share"` // per speaker, sums to 1
	OverlapRate   float64            `json:"overlap_rate"`   // share of the span with 2+ words active
}

// Aggregate computes Stats over tokens. Overlapping words from concurrent
// turns are expected and counted towards OverlapRate.
func Aggregate(tokens []WordToken) Stats {
	st := Stats{Words: map[string]int{}, SpeakingShare: map[string]float64{}}
	if len(tokens) == 0 {
		return st
	}
	st.Start, st.End = math.Inf(1), math.Inf(-1)

	type edge struct {
		t     float64
		delta int
	}
	var edges []edge
	total := 0.0
	for _, tk := range tokens {
		d := math.Max(0, tk.End-tk.Start)
		total += d
		st.Words[tk.Speaker]++
		st.SpeakingShare[tk.Speaker] += d
		st.Start = math.Min(st.Start, tk.Start)
		st.End = math.Max(st.End, tk.End)
		edges = append(edges, edge{t: tk.Start, delta: +1}, edge{t: tk.End, delta: -1})
	}
	// ends sort before starts at the same instant so touching words do not overlap
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].t == edges[j].t {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].t < edges[j].t
	})
	active := 0
	last := edges[0].t
	overlap := 0.0
	for _, e := range edges {
		if active > 1 {
			overlap += e.t - last
		}
		active += e.delta
		last = e.t
	}
	if total > 0 {
		for k := range st.SpeakingShare {
			st.SpeakingShare[k] /= total
		}
	}
	if span := st.End - st.Start; span > 0 {
		st.OverlapRate = overlap / span
	}
	return st
}
