package dag

// detectCycles checks for circular dependencies using DFS. Nodes are visited
// in declaration order so the reported cycle is stable.
func detectCycles(nodes []*Node) error {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[*Node]int, len(nodes))
	var stack []*Node

	var visit func(n *Node) error
	visit = func(n *Node) error {
		state[n] = visiting
		stack = append(stack, n)
		for _, in := range n.Inputs {
			switch state[in.Node] {
			case visiting:
				return cycleFrom(stack, in.Node)
			case unvisited:
				if err := visit(in.Node); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = visited
		return nil
	}

	for _, n := range nodes {
		if state[n] == unvisited {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func cycleFrom(stack []*Node, start *Node) *CyclicDependencyError {
	i := len(stack) - 1
	for i > 0 && stack[i] != start {
		i--
	}
	cycle := make([]string, 0, len(stack)-i+1)
	for _, n := range stack[i:] {
		cycle = append(cycle, n.Name)
	}
	return &CyclicDependencyError{Cycle: append(cycle, start.Name)}
}

// topoOrder returns the nodes so that every node follows its inputs. Among
// ready nodes the earliest declared goes first. The graph must be acyclic.
func topoOrder(nodes []*Node) []*Node {
	placed := make(map[*Node]bool, len(nodes))
	order := make([]*Node, 0, len(nodes))
	for len(order) < len(nodes) {
		for _, n := range nodes {
			if placed[n] || !inputsPlaced(n, placed) {
				continue
			}
			placed[n] = true
			order = append(order, n)
			break
		}
	}
	return order
}

func inputsPlaced(n *Node, placed map[*Node]bool) bool {
	for _, in := range n.Inputs {
		if !placed[in.Node] {
			return false
		}
	}
	return true
}
