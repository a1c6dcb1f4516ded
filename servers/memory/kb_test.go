package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestKB(t *testing.T) (*knowledgeBase, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "memory.jsonl")
	kb, err := openKnowledgeBase(path)
	if err != nil {
		t.Fatalf("openKnowledgeBase failed: %v", err)
	}
	return kb, path
}

func seed(t *testing.T, kb *knowledgeBase) {
	t.Helper()

	if _, err := kb.createEntities([]Entity{
		{Name: "alice", EntityType: "person", Observations: []string{"likes Go"}},
		{Name: "bob", EntityType: "person"},
		{Name: "acme", EntityType: "company", Observations: []string{"makes anvils"}},
	}); err != nil {
		t.Fatalf("createEntities failed: %v", err)
	}
	if _, err := kb.createRelations([]Relation{
		{From: "alice", To: "acme", RelationType: "works_at"},
		{From: "bob", To: "alice", RelationType: "knows"},
	}); err != nil {
		t.Fatalf("createRelations failed: %v", err)
	}
}

func TestCreateSkipsDuplicates(t *testing.T) {
	kb, _ := newTestKB(t)
	seed(t, kb)

	created, err := kb.createEntities([]Entity{{Name: "alice", EntityType: "robot"}, {Name: "carol", EntityType: "person"}})
	if err != nil {
		t.Fatalf("createEntities failed: %v", err)
	}
	if diff := cmp.Diff([]Entity{{Name: "carol", EntityType: "person", Observations: []string{}}}, created); diff != "" {
		t.Errorf("created entities mismatch (-want +got):\n%s", diff)
	}

	relations, err := kb.createRelations([]Relation{{From: "bob", To: "alice", RelationType: "knows"}})
	if err != nil {
		t.Fatalf("createRelations failed: %v", err)
	}
	if len(relations) != 0 {
		t.Errorf("duplicate relation created: %+v", relations)
	}
}

func TestAddObservations(t *testing.T) {
	kb, _ := newTestKB(t)
	seed(t, kb)

	added, err := kb.addObservations([]Observation{{EntityName: "alice", Contents: []string{"likes Go", "writes tests"}}})
	if err != nil {
		t.Fatalf("addObservations failed: %v", err)
	}
	if diff := cmp.Diff([]Observation{{EntityName: "alice", Contents: []string{"writes tests"}}}, added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}

	// A missing entity fails the whole batch and leaves the graph untouched.
	_, err = kb.addObservations([]Observation{
		{EntityName: "bob", Contents: []string{"new"}},
		{EntityName: "nobody", Contents: []string{"x"}},
	})
	if err == nil {
		t.Fatal("expected an error for a missing entity")
	}
	if got := kb.openNodes([]string{"bob"}).Entities[0].Observations; len(got) != 0 {
		t.Errorf("bob observations = %v, want none", got)
	}
}

func TestDelete(t *testing.T) {
	kb, _ := newTestKB(t)
	seed(t, kb)

	if err := kb.deleteObservations([]ObservationDeletion{{EntityName: "acme", Observations: []string{"makes anvils"}}}); err != nil {
		t.Fatalf("deleteObservations failed: %v", err)
	}
	if err := kb.deleteRelations([]Relation{{From: "bob", To: "alice", RelationType: "knows"}}); err != nil {
		t.Fatalf("deleteRelations failed: %v", err)
	}
	if err := kb.deleteEntities([]string{"alice"}); err != nil {
		t.Fatalf("deleteEntities failed: %v", err)
	}

	want := KnowledgeGraph{
		Entities: []Entity{
			{Name: "bob", EntityType: "person", Observations: []string{}},
			{Name: "acme", EntityType: "company", Observations: []string{}},
		},
		Relations: []Relation{},
	}
	if diff := cmp.Diff(want, kb.readGraph()); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchAndOpenNodes(t *testing.T) {
	kb, _ := newTestKB(t)
	seed(t, kb)

	tests := []struct {
		name      string
		graph     KnowledgeGraph
		entities  []string
		relations int
	}{
		{name: "search by type", graph: kb.searchNodes("PERSON"), entities: []string{"alice", "bob"}, relations: 1},
		{name: "search by observation", graph: kb.searchNodes("anvil"), entities: []string{"acme"}},
		{name: "search without match", graph: kb.searchNodes("zebra")},
		{name: "open", graph: kb.openNodes([]string{"alice", "acme", "nobody"}), entities: []string{"alice", "acme"}, relations: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for _, e := range tt.graph.Entities {
				names = append(names, e.Name)
			}
			if diff := cmp.Diff(tt.entities, names); diff != "" {
				t.Errorf("entities mismatch (-want +got):\n%s", diff)
			}
			if len(tt.graph.Relations) != tt.relations {
				t.Errorf("got %d relations, want %d", len(tt.graph.Relations), tt.relations)
			}
		})
	}
}

func TestPersistence(t *testing.T) {
	kb, path := newTestKB(t)
	seed(t, kb)

	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read store: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(bs)), "\n")
	if len(lines) != 5 {
		t.Fatalf("store has %d lines, want 5:\n%s", len(lines), bs)
	}
	if want := `{"type":"entity","name":"alice","entityType":"person","observations":["likes Go"]}`; lines[0] != want {
		t.Errorf("first line = %s, want %s", lines[0], want)
	}
	if want := `{"type":"relation","from":"alice","to":"acme","relationType":"works_at"}`; lines[3] != want {
		t.Errorf("fourth line = %s, want %s", lines[3], want)
	}

	reopened, err := openKnowledgeBase(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if diff := cmp.Diff(kb.readGraph(), reopened.readGraph()); diff != "" {
		t.Errorf("reopened graph mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenCorruptStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	if err := os.WriteFile(path, []byte("{not json\n"), 0o600); err != nil {
		t.Fatalf("failed to write store: %v", err)
	}
	if _, err := openKnowledgeBase(path); err == nil {
		t.Error("expected an error for a corrupt store")
	}
}
