package vectorindex

import (
	"math"
	"sort"
)

// CosineDistance は 1 - コサイン類似度を返す。ゼロベクトルとの距離は 1。
func CosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return DistanceFromSimilarity(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// DistanceFromSimilarity はコサイン類似度を距離に変換する。
// 丸め誤差で [0, 2] をはみ出さないようにする。
func DistanceFromSimilarity(similarity float64) float64 {
	return math.Max(0, math.Min(2, 1-similarity))
}

// SortHits は距離の昇順に並べ、先頭 k 件を返す
func SortHits(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
