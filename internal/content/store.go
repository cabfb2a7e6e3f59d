// store.go
//
// Multi-tenant ESG assessment and benchmarking platform core
// Copyright (c) 2026 Greenlattice <dev@greenlattice.io>
//
// This file is part of esgbench.
// esgbench is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// esgbench is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with esgbench.
// If not, see <https://www.gnu.org/licenses/>.

// Package content stores the campaign content DAG (segments, tiles,
// headings, practices) and assembles presentation trees from it.
package content

import (
	"sort"

	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/paths"
	"github.com/greenlattice/esgbench/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store provides access to content elements and their relationships.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewStore creates a content store.
func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// DB exposes the underlying handle for composing services.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithDB rebinds the store to another handle, typically a transaction.
func (s *Store) WithDB(db *gorm.DB) *Store {
	return &Store{db: db, log: s.log}
}

// ElementBySlug returns the element with the given slug.
func (s *Store) ElementBySlug(slug string) (*models.Element, error) {
	var el models.Element
	if err := s.db.Where("slug = ?", slug).First(&el).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.E(types.KindNotFound, "element %q not found", slug)
		}
		return nil, err
	}
	return &el, nil
}

// Roots returns elements without incoming relationships, optionally
// restricted to searchable elements and to a set of owner accounts.
func (s *Store) Roots(searchableOnly bool, accounts []uint64) ([]models.Element, error) {
	query := s.db.
		Where("element_id NOT IN (?)", s.db.Model(&models.Relationship{}).Select("dest_id"))
	if len(accounts) > 0 {
		query = query.Where("account_id IN ?", accounts)
	}
	var roots []models.Element
	if err := query.Order("slug").Find(&roots).Error; err != nil {
		return nil, err
	}
	if !searchableOnly {
		return roots, nil
	}
	filtered := roots[:0]
	for _, el := range roots {
		extra, err := models.ParseElementExtra(el.Extra)
		if err != nil {
			return nil, types.E(types.KindValidation, "element %q extra: %v", el.Slug, err)
		}
		if extra.Searchable {
			filtered = append(filtered, el)
		}
	}
	return filtered, nil
}

// AddChild creates a parent -> child relationship. When rank is nil the
// edge is appended after the existing children. A cycle attempt fails
// with an integrity error.
func (s *Store) AddChild(parentSlug, childSlug string, rank *int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		parent, child, err := s.pair(tx, parentSlug, childSlug)
		if err != nil {
			return err
		}
		if err := ensureAcyclic(tx, parent.ElementID, child.ElementID); err != nil {
			return err
		}
		r := rank
		if r == nil {
			next, err := nextRank(tx, parent.ElementID)
			if err != nil {
				return err
			}
			r = &next
		}
		return tx.Create(&models.Relationship{
			OrigID: parent.ElementID,
			DestID: child.ElementID,
			Rank:   *r,
		}).Error
	})
}

// MoveNode detaches the element at srcPath from its current parent and
// attaches it under dstParent.
func (s *Store) MoveNode(srcPath, dstParentSlug string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		oldParent, node, err := s.endpoints(tx, srcPath)
		if err != nil {
			return err
		}
		dst, err := s.elementBySlugTx(tx, dstParentSlug)
		if err != nil {
			return err
		}
		if err := ensureAcyclic(tx, dst.ElementID, node.ElementID); err != nil {
			return err
		}
		if oldParent != nil {
			if err := tx.Where("orig_id = ? AND dest_id = ?", oldParent.ElementID, node.ElementID).
				Delete(&models.Relationship{}).Error; err != nil {
				return err
			}
		}
		next, err := nextRank(tx, dst.ElementID)
		if err != nil {
			return err
		}
		return tx.Create(&models.Relationship{
			OrigID: dst.ElementID,
			DestID: node.ElementID,
			Rank:   next,
		}).Error
	})
}

// AliasNode attaches the element at srcPath under an additional parent,
// appended after dstParent's existing children. The subtree is shared,
// not duplicated.
func (s *Store) AliasNode(srcPath, dstParentSlug string) error {
	return s.attach(srcPath, dstParentSlug, nil)
}

// MirrorNode is AliasNode preserving the source rank, so the shared tile
// slots at the same position under both parents.
func (s *Store) MirrorNode(srcPath, dstParentSlug string) error {
	var srcRank *int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		oldParent, node, err := s.endpoints(tx, srcPath)
		if err != nil {
			return err
		}
		if oldParent == nil {
			return nil
		}
		var rel models.Relationship
		if err := tx.Where("orig_id = ? AND dest_id = ?", oldParent.ElementID, node.ElementID).
			First(&rel).Error; err != nil {
			return err
		}
		srcRank = &rel.Rank
		return nil
	})
	if err != nil {
		return err
	}
	return s.attach(srcPath, dstParentSlug, srcRank)
}

func (s *Store) attach(srcPath, dstParentSlug string, rank *int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		_, node, err := s.endpoints(tx, srcPath)
		if err != nil {
			return err
		}
		dst, err := s.elementBySlugTx(tx, dstParentSlug)
		if err != nil {
			return err
		}
		if err := ensureAcyclic(tx, dst.ElementID, node.ElementID); err != nil {
			return err
		}
		r := rank
		if r == nil {
			next, err := nextRank(tx, dst.ElementID)
			if err != nil {
				return err
			}
			r = &next
		} else {
			// Source rank may collide under the new parent; fall back to append.
			var clash int64
			if err := tx.Model(&models.Relationship{}).
				Where("orig_id = ? AND edge_rank = ?", dst.ElementID, *r).
				Count(&clash).Error; err != nil {
				return err
			}
			if clash > 0 {
				next, err := nextRank(tx, dst.ElementID)
				if err != nil {
					return err
				}
				r = &next
			}
		}
		return tx.Create(&models.Relationship{
			OrigID: dst.ElementID,
			DestID: node.ElementID,
			Rank:   *r,
		}).Error
	})
}

// ParentPaths returns every root-to-element chain reaching el through the
// relationship graph. An element reused under several parents yields one
// chain per effective position.
func (s *Store) ParentPaths(el *models.Element) ([][]models.Element, error) {
	g, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return g.parentPaths(el.ElementID), nil
}

// EffectivePaths returns the slug paths of every position el occupies.
func (s *Store) EffectivePaths(el *models.Element) ([]string, error) {
	chains, err := s.ParentPaths(el)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(chains))
	for _, chain := range chains {
		slugs := make([]string, len(chain))
		for i, e := range chain {
			slugs[i] = e.Slug
		}
		out = append(out, paths.Join(slugs...))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) pair(tx *gorm.DB, parentSlug, childSlug string) (*models.Element, *models.Element, error) {
	parent, err := s.elementBySlugTx(tx, parentSlug)
	if err != nil {
		return nil, nil, err
	}
	child, err := s.elementBySlugTx(tx, childSlug)
	if err != nil {
		return nil, nil, err
	}
	return parent, child, nil
}

// endpoints resolves srcPath to its (parent, leaf) elements. The parent is
// nil when srcPath is a single root slug.
func (s *Store) endpoints(tx *gorm.DB, srcPath string) (*models.Element, *models.Element, error) {
	normalized, err := paths.Normalize(srcPath)
	if err != nil {
		return nil, nil, err
	}
	parts := paths.Split(normalized)
	if len(parts) == 0 {
		return nil, nil, types.E(types.KindValidation, "empty source path")
	}
	node, err := s.elementBySlugTx(tx, parts[len(parts)-1])
	if err != nil {
		return nil, nil, err
	}
	if len(parts) == 1 {
		return nil, node, nil
	}
	parent, err := s.elementBySlugTx(tx, parts[len(parts)-2])
	if err != nil {
		return nil, nil, err
	}
	return parent, node, nil
}

func (s *Store) elementBySlugTx(tx *gorm.DB, slug string) (*models.Element, error) {
	var el models.Element
	if err := tx.Where("slug = ?", slug).First(&el).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.E(types.KindNotFound, "element %q not found", slug)
		}
		return nil, err
	}
	return &el, nil
}

func nextRank(tx *gorm.DB, origID uint64) (int, error) {
	var max *int
	if err := tx.Model(&models.Relationship{}).
		Where("orig_id = ?", origID).
		Select("MAX(edge_rank)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

// ensureAcyclic rejects an edge parent -> child that would close a cycle:
// child must not be parent itself nor any of parent's ancestors.
func ensureAcyclic(tx *gorm.DB, parentID, childID uint64) error {
	if parentID == childID {
		return types.E(types.KindIntegrity, "edge would create a self-cycle")
	}
	seen := map[uint64]bool{parentID: true}
	frontier := []uint64{parentID}
	for len(frontier) > 0 {
		var rels []models.Relationship
		if err := tx.Where("dest_id IN ?", frontier).Find(&rels).Error; err != nil {
			return err
		}
		frontier = frontier[:0]
		for _, rel := range rels {
			if rel.OrigID == childID {
				return types.E(types.KindIntegrity, "edge would create a cycle")
			}
			if !seen[rel.OrigID] {
				seen[rel.OrigID] = true
				frontier = append(frontier, rel.OrigID)
			}
		}
	}
	return nil
}
