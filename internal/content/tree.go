package content

import (
	"sort"

	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/types"
	"gorm.io/gorm"
)

// TreeNode is one node of an assembled content tree. Children are ordered
// by edge rank; the same element may back several nodes when a tile is
// reached through multiple parents.
type TreeNode struct {
	Element  models.Element
	Extra    models.ElementExtra
	Path     string
	Rank     int
	Children []*TreeNode
}

// Cut prunes an assembled tree. Enter decides whether to descend into a
// node at all; Leave, called with the finished node and its surviving
// subtrees, decides whether the node is kept.
type Cut interface {
	Enter(extra models.ElementExtra) bool
	Leave(node *TreeNode, subtrees []*TreeNode) bool
}

// KeepAll is the no-op cut.
type KeepAll struct{}

func (KeepAll) Enter(models.ElementExtra) bool    { return true }
func (KeepAll) Leave(*TreeNode, []*TreeNode) bool { return true }

// graph is an in-memory snapshot of the whole content DAG. Campaign-sized
// graphs stay below a few thousand nodes, so one load per assembly is
// cheaper than walking with per-node queries.
type graph struct {
	elements map[uint64]models.Element
	bySlug   map[string]uint64
	children map[uint64][]models.Relationship
	parents  map[uint64][]uint64
}

func (s *Store) snapshot() (*graph, error) {
	return loadGraph(s.db)
}

func loadGraph(db *gorm.DB) (*graph, error) {
	var elements []models.Element
	if err := db.Find(&elements).Error; err != nil {
		return nil, err
	}
	var rels []models.Relationship
	if err := db.Order("orig_id, edge_rank").Find(&rels).Error; err != nil {
		return nil, err
	}

	g := &graph{
		elements: make(map[uint64]models.Element, len(elements)),
		bySlug:   make(map[string]uint64, len(elements)),
		children: make(map[uint64][]models.Relationship),
		parents:  make(map[uint64][]uint64),
	}
	for _, el := range elements {
		g.elements[el.ElementID] = el
		g.bySlug[el.Slug] = el.ElementID
	}
	for _, rel := range rels {
		g.children[rel.OrigID] = append(g.children[rel.OrigID], rel)
		g.parents[rel.DestID] = append(g.parents[rel.DestID], rel.OrigID)
	}
	for origID := range g.children {
		edges := g.children[origID]
		sort.Slice(edges, func(i, j int) bool { return edges[i].Rank < edges[j].Rank })
	}
	return g, nil
}

// parentPaths returns every root-to-element chain for id, elements included
// at both ends.
func (g *graph) parentPaths(id uint64) [][]models.Element {
	el, ok := g.elements[id]
	if !ok {
		return nil
	}
	parents := g.parents[id]
	if len(parents) == 0 {
		return [][]models.Element{{el}}
	}
	var out [][]models.Element
	for _, parentID := range parents {
		for _, chain := range g.parentPaths(parentID) {
			extended := make([]models.Element, 0, len(chain)+1)
			extended = append(extended, chain...)
			extended = append(extended, el)
			out = append(out, extended)
		}
	}
	return out
}

// BuildContentTree assembles the subtrees rooted at roots, keeping only
// nodes whose path lies under prefix and that survive the cut.
func (s *Store) BuildContentTree(roots []models.Element, prefix string, cut Cut) ([]*TreeNode, error) {
	if cut == nil {
		cut = KeepAll{}
	}
	if prefix != "" {
		normalized, err := paths.Normalize(prefix)
		if err != nil {
			return nil, err
		}
		prefix = normalized
	}
	g, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	var out []*TreeNode
	for _, root := range roots {
		if _, ok := g.elements[root.ElementID]; !ok {
			return nil, types.E(types.KindNotFound, "element %q not found", root.Slug)
		}
		node, err := g.build(root.ElementID, paths.Join(root.Slug), 0, prefix, cut)
		if err != nil {
			return nil, err
		}
		if node != nil {
			out = append(out, node)
		}
	}
	return out, nil
}

func (g *graph) build(id uint64, path string, rank int, prefix string, cut Cut) (*TreeNode, error) {
	el := g.elements[id]
	extra, err := models.ParseElementExtra(el.Extra)
	if err != nil {
		return nil, types.E(types.KindValidation, "element %q extra: %v", el.Slug, err)
	}
	if !cut.Enter(extra) {
		return nil, nil
	}
	node := &TreeNode{Element: el, Extra: extra, Path: path, Rank: rank}

	// Keep ancestors of prefix so the requested subtree stays reachable,
	// and everything at or below it.
	inScope := paths.HasPrefix(path, prefix) || paths.HasPrefix(prefix, path)
	if !inScope {
		return nil, nil
	}

	var subtrees []*TreeNode
	for _, edge := range g.children[id] {
		child, err := g.build(edge.DestID, paths.Child(path, g.elements[edge.DestID].Slug), edge.Rank, prefix, cut)
		if err != nil {
			return nil, err
		}
		if child != nil {
			subtrees = append(subtrees, child)
		}
	}
	node.Children = subtrees

	if !cut.Leave(node, subtrees) {
		return nil, nil
	}
	return node, nil
}

// Walk visits node and its descendants depth-first in rank order.
func (n *TreeNode) Walk(fn func(*TreeNode)) {
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// IsLeaf reports whether the node has no children.
func (n *TreeNode) IsLeaf() bool {
	return len(n.Children) == 0
}
