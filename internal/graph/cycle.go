package graph

// findCycle runs a full cycle search over the adjacency map and returns
// one example cycle as a mangled-name sequence with the first name
// repeated at the end, or nil if the graph is acyclic.
//
// Uses Tarjan's strongly-connected-components algorithm: any SCC with
// more than one member, or a single member with a self-loop, contains a
// cycle. The structural mutation that triggered the search is rolled
// back by the caller when a cycle is found.
func findCycle(succ map[string][]string) []string {
	sccs := tarjanSCC(succ)
	for _, scc := range sccs {
		if len(scc) > 1 {
			return reconstructCyclePath(scc, succ)
		}
		if len(scc) == 1 && hasSelfLoop(scc[0], succ) {
			return []string{scc[0], scc[0]}
		}
	}
	return nil
}

func hasSelfLoop(node string, succ map[string][]string) bool {
	for _, neighbor := range succ[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Single-node SCCs
// without self-loops are not cycles.
func tarjanSCC(succ map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range succ[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for node := range succ {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds one example cycle path through an SCC,
// starting at its first member and following edges within the SCC until
// the start repeats.
func reconstructCyclePath(scc []string, succ map[string][]string) []string {
	if len(scc) == 0 {
		return nil
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	cycle := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range succ[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		cycle = append(cycle, next)
		if next == start {
			break
		}
		current = next
	}

	return cycle
}
