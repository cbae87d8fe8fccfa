package cluster

import "math"

// CosineSimilarity computes the cosine of the angle between two vectors,
// clamped to [-1, 1]. Mismatched or zero vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// cosineDistance is 1 - similarity, the metric HDBSCAN runs over. Euclidean
// distance degrades badly on 768-dim embeddings.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return 1.0
	}
	return 1.0 - CosineSimilarity(a, b)
}

// centroid averages a set of vectors.
func centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range v {
			if i < len(out) {
				out[i] += v[i]
			}
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out
}
