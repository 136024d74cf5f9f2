package knowledge

import (
	"math"
	"sort"
)

// CosineDistance returns 1 - cos(a, b), clamped to [0, 2]. Vectors of
// different length or with zero norm are maximally uninformative and score 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

// SortByDistance orders hits nearest first, breaking ties by id so results
// are stable across backends.
func SortByDistance(docs []RetrievedDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Distance != docs[j].Distance {
			return docs[i].Distance < docs[j].Distance
		}
		return docs[i].ID < docs[j].ID
	})
}
