package clustering

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"sort"
	"strings"

	"marketintel/internal/core"
)

const kmeansMaxIterations = 50

// tfidfKMeans is the deterministic fallback: vectorize headlines plus
// descriptions with TF-IDF and partition with seeded k-means.
func tfidfKMeans(articles []core.EnrichedArticle) [][]core.EnrichedArticle {
	if len(articles) <= 2 {
		return [][]core.EnrichedArticle{articles}
	}

	vectors, _ := tfidfVectors(articles)

	k := int(math.Ceil(float64(len(articles)) / 10))
	if k < 2 {
		k = 2
	}
	if k > 15 {
		k = 15
	}
	if k > len(articles) {
		k = len(articles)
	}

	assignments := kmeans(vectors, k, seedFromArticles(articles))

	groups := make([][]core.EnrichedArticle, k)
	for i, cluster := range assignments {
		groups[cluster] = append(groups[cluster], articles[i])
	}

	var nonEmpty [][]core.EnrichedArticle
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	return nonEmpty
}

// seedFromArticles derives the RNG seed from the sorted article-id set, so the
// same input always partitions the same way.
func seedFromArticles(articles []core.EnrichedArticle) int64 {
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// tfidfVectors builds one sparse-ish dense vector per article over the corpus
// vocabulary.
func tfidfVectors(articles []core.EnrichedArticle) ([][]float64, []string) {
	docs := make([][]string, len(articles))
	df := make(map[string]int)
	for i, a := range articles {
		tokens := tokenizeWords(a.Title + " " + a.Description)
		var kept []string
		seen := make(map[string]bool)
		for _, tok := range tokens {
			if len(tok) <= 3 || keywordStopList[tok] {
				continue
			}
			kept = append(kept, tok)
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
		docs[i] = kept
	}

	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)
	index := make(map[string]int, len(vocab))
	for i, term := range vocab {
		index[term] = i
	}

	n := float64(len(articles))
	vectors := make([][]float64, len(articles))
	for i, tokens := range docs {
		vec := make([]float64, len(vocab))
		if len(tokens) == 0 {
			vectors[i] = vec
			continue
		}
		tf := make(map[string]float64)
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, count := range tf {
			idf := math.Log(n/float64(df[term])) + 1
			vec[index[term]] = (count / float64(len(tokens))) * idf
		}
		l2Normalize(vec)
		vectors[i] = vec
	}
	return vectors, vocab
}

// kmeans partitions vectors into k groups. Centroid initialization and any
// tie-breaking come from the seeded RNG, keeping runs reproducible.
func kmeans(vectors [][]float64, k int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	dims := len(vectors[0])

	// Initialize centroids from distinct random points.
	perm := rng.Perm(len(vectors))
	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float64(nil), vectors[perm[i]]...)
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := squaredDistance(v, centroid)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids; empty ones are reseeded from a random point.
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dims)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d := range v {
				sums[c][d] += v[d]
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				centroids[c] = append([]float64(nil), vectors[rng.Intn(len(vectors))]...)
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	return assignments
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
