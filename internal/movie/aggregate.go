package movie

import "sort"

// Tally counts keys and returns buckets ordered by count descending, then key.
// Blank keys are ignored.
func Tally(keys []string) []Bucket {
	counts := make(map[string]int)
	for _, k := range keys {
		if k == "" {
			continue
		}
		counts[k]++
	}
	out := make([]Bucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, Bucket{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Limit truncates buckets to n entries. n <= 0 keeps everything.
func Limit(b []Bucket, n int) []Bucket {
	if n <= 0 || len(b) <= n {
		return b
	}
	return b[:n]
}
