package match

import "sort"

// UnionFind is a disjoint-set structure over int ids with path compression.
// Used to build person clusters from above-threshold record pairs: the
// clusters are the connected components of the match graph.
type UnionFind struct {
	parent map[int]int
}

// NewUnionFind returns an empty disjoint-set structure.
func NewUnionFind() *UnionFind {
	return &UnionFind{parent: make(map[int]int)}
}

// Add registers id as a singleton set if not already present.
func (u *UnionFind) Add(id int) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

// Find returns the representative of id's set, compressing the path walked.
func (u *UnionFind) Find(id int) int {
	u.Add(id)
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		u.parent[id], id = root, u.parent[id]
	}
	return root
}

// Union merges the sets containing a and b.
func (u *UnionFind) Union(a, b int) {
	ra, rb := u.Find(a), u.Find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// Clusters returns the current partition. Members within a cluster are
// sorted ascending and clusters are ordered by their smallest member, so
// the output does not depend on insertion order or internal parent layout.
func (u *UnionFind) Clusters() [][]int {
	byRoot := make(map[int][]int)
	for id := range u.parent {
		root := u.Find(id)
		byRoot[root] = append(byRoot[root], id)
	}

	clusters := make([][]int, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Ints(members)
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i][0] < clusters[j][0]
	})
	return clusters
}
