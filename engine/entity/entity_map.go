package entity

import (
	"sort"

	"github.com/xiaonanln/fpsworld/engine/common"
)

// EntityMap is the data structure for maintaining entity IDs to entities
type EntityMap map[common.EntityID]Entity

// Add adds a new entity to EntityMap
func (em EntityMap) Add(e Entity) {
	em[e.ID()] = e
}

// Del deletes an entity from EntityMap
func (em EntityMap) Del(id common.EntityID) {
	delete(em, id)
}

// Get returns the Entity of specified entity ID in EntityMap
func (em EntityMap) Get(id common.EntityID) Entity {
	return em[id]
}

// Sorted returns the entities ordered by id
func (em EntityMap) Sorted() []Entity {
	list := make([]Entity, 0, len(em))
	for _, e := range em {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}
