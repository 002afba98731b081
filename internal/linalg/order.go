package linalg

import "sort"

// RCM returns a reverse Cuthill-McKee ordering of the symmetric pattern
// of a. perm[k] is the original index placed at position k. Only the
// pattern is used; entries from either triangle are accepted.
func RCM(a *CSC) []int {
	n := a.Cols
	adj := make([][]int, n)
	for j := 0; j < n; j++ {
		for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
			i := a.RowIdx[k]
			if i == j {
				continue
			}
			adj[i] = append(adj[i], j)
			adj[j] = append(adj[j], i)
		}
	}
	for i := range adj {
		adj[i] = dedupe(adj[i])
	}

	visited := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		start := -1
		for i := 0; i < n; i++ {
			if !visited[i] && (start < 0 || len(adj[i]) < len(adj[start])) {
				start = i
			}
		}
		start = peripheral(adj, start, visited)

		visited[start] = true
		queue := []int{start}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			order = append(order, v)

			next := make([]int, 0, len(adj[v]))
			for _, w := range adj[v] {
				if !visited[w] {
					visited[w] = true
					next = append(next, w)
				}
			}
			sort.SliceStable(next, func(x, y int) bool { return len(adj[next[x]]) < len(adj[next[y]]) })
			queue = append(queue, next...)
		}
	}

	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// peripheral walks to a pseudo-peripheral node of the component holding
// start by repeated breadth-first sweeps.
func peripheral(adj [][]int, start int, done []bool) int {
	level := func(root int) (int, int) {
		depth := map[int]int{root: 0}
		queue := []int{root}
		last, ecc := root, 0
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			d := depth[v]
			if d > ecc || (d == ecc && len(adj[v]) < len(adj[last])) {
				last, ecc = v, d
			}
			for _, w := range adj[v] {
				if done[w] {
					continue
				}
				if _, ok := depth[w]; !ok {
					depth[w] = d + 1
					queue = append(queue, w)
				}
			}
		}
		return last, ecc
	}

	root := start
	far, ecc := level(root)
	for i := 0; i < 4; i++ {
		cand, e := level(far)
		if e <= ecc {
			break
		}
		root, far, ecc = far, cand, e
	}
	return root
}

// InversePerm returns iperm with iperm[perm[k]] = k.
func InversePerm(perm []int) []int {
	iperm := make([]int, len(perm))
	for k, p := range perm {
		iperm[p] = k
	}
	return iperm
}

func dedupe(s []int) []int {
	if len(s) < 2 {
		return s
	}
	sort.Ints(s)
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
