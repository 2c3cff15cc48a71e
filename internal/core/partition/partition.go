package partition

import "hash/fnv"

// Count is the number of hash shards used by keyed registries such as the
// time series manager. It is fixed so a twin id always lands on the same shard.
const Count = 256

// For returns the shard for a twin or trend id.
// Uses FNV-32a, same key always maps to the same shard.
func For(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % Count)
}

// Groups assigns twins to affinity groups. Twins that feed the same rule
// instance are merged into one group so every actor reading them runs on a
// single worker.
type Groups struct {
	parent map[string]string
	rank   map[string]int
	order  map[string]int // first-seen order of each root, keeps group ids stable
	next   int
}

// NewGroups returns an empty group table.
func NewGroups() *Groups {
	return &Groups{
		parent: make(map[string]string),
		rank:   make(map[string]int),
		order:  make(map[string]int),
	}
}

// Add registers id as its own group if it is new.
func (g *Groups) Add(id string) {
	if _, ok := g.parent[id]; ok {
		return
	}
	g.parent[id] = id
	g.order[id] = g.next
	g.next++
}

// Union merges the groups of all ids.
func (g *Groups) Union(ids ...string) {
	if len(ids) == 0 {
		return
	}
	g.Add(ids[0])
	for _, id := range ids[1:] {
		g.Add(id)
		g.link(g.find(ids[0]), g.find(id))
	}
}

// Group returns the stable group number of id, or -1 if id was never added.
func (g *Groups) Group(id string) int {
	if _, ok := g.parent[id]; !ok {
		return -1
	}
	return g.order[g.find(id)]
}

// Worker maps id onto one of workers slots. Unknown ids fall back to hashing.
func (g *Groups) Worker(id string, workers int) int {
	if workers <= 1 {
		return 0
	}
	group := g.Group(id)
	if group < 0 {
		return For(id) % workers
	}
	return group % workers
}

func (g *Groups) find(id string) string {
	for g.parent[id] != id {
		g.parent[id] = g.parent[g.parent[id]]
		id = g.parent[id]
	}
	return id
}

func (g *Groups) link(a, b string) {
	if a == b {
		return
	}
	if g.rank[a] < g.rank[b] {
		a, b = b, a
	}
	g.parent[b] = a
	if g.rank[a] == g.rank[b] {
		g.rank[a]++
	}
	// the surviving root keeps the earliest order so group ids do not drift
	if g.order[b] < g.order[a] {
		g.order[a] = g.order[b]
	}
}
