package memory

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// knowledgeBase is a graph of entities and relations persisted as JSON lines, one record per
// line. The whole graph is held in memory and rewritten on every mutation.
type knowledgeBase struct {
	path string

	mu    sync.Mutex
	graph KnowledgeGraph
}

type record struct {
	Type string `json:"type"`

	Name         string   `json:"name,omitempty"`
	EntityType   string   `json:"entityType,omitempty"`
	Observations []string `json:"observations,omitempty"`

	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	RelationType string `json:"relationType,omitempty"`
}

const (
	recordEntity   = "entity"
	recordRelation = "relation"
)

func openKnowledgeBase(path string) (*knowledgeBase, error) {
	kb := &knowledgeBase{path: path, graph: emptyGraph()}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return kb, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var r record
		if err := dec.Decode(&r); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		switch r.Type {
		case recordEntity:
			kb.graph.Entities = append(kb.graph.Entities, Entity{
				Name:         r.Name,
				EntityType:   r.EntityType,
				Observations: r.Observations,
			})
		case recordRelation:
			kb.graph.Relations = append(kb.graph.Relations, Relation{
				From:         r.From,
				To:           r.To,
				RelationType: r.RelationType,
			})
		}
	}
	return kb, nil
}

func emptyGraph() KnowledgeGraph {
	return KnowledgeGraph{Entities: []Entity{}, Relations: []Relation{}}
}

// save writes the graph to a temporary file next to path and renames it into place.
func (k *knowledgeBase) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(k.path), filepath.Base(k.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, e := range k.graph.Entities {
		if err := enc.Encode(record{Type: recordEntity, Name: e.Name, EntityType: e.EntityType, Observations: e.Observations}); err != nil {
			tmp.Close()
			return err
		}
	}
	for _, r := range k.graph.Relations {
		if err := enc.Encode(record{Type: recordRelation, From: r.From, To: r.To, RelationType: r.RelationType}); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), k.path)
}

// mutate applies fn to the graph and persists the result. The graph is restored if fn or the
// write fails.
func (k *knowledgeBase) mutate(fn func(g *KnowledgeGraph) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	before := k.graph.clone()
	if err := fn(&k.graph); err != nil {
		k.graph = before
		return err
	}
	if err := k.save(); err != nil {
		k.graph = before
		return err
	}
	return nil
}

func (k *knowledgeBase) createEntities(entities []Entity) ([]Entity, error) {
	created := []Entity{}
	err := k.mutate(func(g *KnowledgeGraph) error {
		for _, e := range entities {
			if g.entityIndex(e.Name) >= 0 {
				continue
			}
			if e.Observations == nil {
				e.Observations = []string{}
			}
			g.Entities = append(g.Entities, e)
			created = append(created, e)
		}
		return nil
	})
	return created, err
}

func (k *knowledgeBase) createRelations(relations []Relation) ([]Relation, error) {
	created := []Relation{}
	err := k.mutate(func(g *KnowledgeGraph) error {
		for _, r := range relations {
			if slices.Contains(g.Relations, r) {
				continue
			}
			g.Relations = append(g.Relations, r)
			created = append(created, r)
		}
		return nil
	})
	return created, err
}

func (k *knowledgeBase) addObservations(additions []Observation) ([]Observation, error) {
	var added []Observation
	err := k.mutate(func(g *KnowledgeGraph) error {
		added = make([]Observation, 0, len(additions))
		for _, add := range additions {
			i := g.entityIndex(add.EntityName)
			if i < 0 {
				return fmt.Errorf("entity with name %s not found", add.EntityName)
			}
			fresh := []string{}
			for _, content := range add.Contents {
				if slices.Contains(g.Entities[i].Observations, content) {
					continue
				}
				g.Entities[i].Observations = append(g.Entities[i].Observations, content)
				fresh = append(fresh, content)
			}
			added = append(added, Observation{EntityName: add.EntityName, Contents: fresh})
		}
		return nil
	})
	return added, err
}

// deleteEntities removes the named entities together with every relation touching them.
func (k *knowledgeBase) deleteEntities(names []string) error {
	return k.mutate(func(g *KnowledgeGraph) error {
		g.Entities = slices.DeleteFunc(g.Entities, func(e Entity) bool {
			return slices.Contains(names, e.Name)
		})
		g.Relations = slices.DeleteFunc(g.Relations, func(r Relation) bool {
			return slices.Contains(names, r.From) || slices.Contains(names, r.To)
		})
		return nil
	})
}

func (k *knowledgeBase) deleteObservations(deletions []ObservationDeletion) error {
	return k.mutate(func(g *KnowledgeGraph) error {
		for _, del := range deletions {
			i := g.entityIndex(del.EntityName)
			if i < 0 {
				continue
			}
			g.Entities[i].Observations = slices.DeleteFunc(g.Entities[i].Observations, func(o string) bool {
				return slices.Contains(del.Observations, o)
			})
		}
		return nil
	})
}

func (k *knowledgeBase) deleteRelations(relations []Relation) error {
	return k.mutate(func(g *KnowledgeGraph) error {
		g.Relations = slices.DeleteFunc(g.Relations, func(r Relation) bool {
			return slices.Contains(relations, r)
		})
		return nil
	})
}

func (k *knowledgeBase) readGraph() KnowledgeGraph {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.graph.clone()
}

// searchNodes returns the entities whose name, type or observations contain query, ignoring
// case, and the relations between them.
func (k *knowledgeBase) searchNodes(query string) KnowledgeGraph {
	q := strings.ToLower(query)
	return k.subgraph(func(e Entity) bool {
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.EntityType), q) {
			return true
		}
		return slices.ContainsFunc(e.Observations, func(o string) bool {
			return strings.Contains(strings.ToLower(o), q)
		})
	})
}

func (k *knowledgeBase) openNodes(names []string) KnowledgeGraph {
	return k.subgraph(func(e Entity) bool {
		return slices.Contains(names, e.Name)
	})
}

func (k *knowledgeBase) subgraph(keep func(Entity) bool) KnowledgeGraph {
	g := k.readGraph()

	out := emptyGraph()
	names := make(map[string]bool)
	for _, e := range g.Entities {
		if keep(e) {
			out.Entities = append(out.Entities, e)
			names[e.Name] = true
		}
	}
	for _, r := range g.Relations {
		if names[r.From] && names[r.To] {
			out.Relations = append(out.Relations, r)
		}
	}
	return out
}

func (g KnowledgeGraph) entityIndex(name string) int {
	return slices.IndexFunc(g.Entities, func(e Entity) bool {
		return e.Name == name
	})
}

func (g KnowledgeGraph) clone() KnowledgeGraph {
	out := KnowledgeGraph{
		Entities:  make([]Entity, len(g.Entities)),
		Relations: append([]Relation{}, g.Relations...),
	}
	for i, e := range g.Entities {
		e.Observations = append([]string{}, e.Observations...)
		out.Entities[i] = e
	}
	return out
}
