package interchange

import (
	"github.com/verte-zerg/speedlesen/internal/model"
)

// rosterBuilder collects groups and their members in first-seen order.
// A repeated pid keeps its position and takes the later name and alias.
type rosterBuilder struct {
	order   []string
	members map[string][]model.Person
	index   map[string]map[string]int
}

func newRosterBuilder() *rosterBuilder {
	return &rosterBuilder{
		members: map[string][]model.Person{},
		index:   map[string]map[string]int{},
	}
}

func (rb *rosterBuilder) group(id string) {
	if _, ok := rb.index[id]; ok {
		return
	}
	rb.order = append(rb.order, id)
	rb.index[id] = map[string]int{}
	rb.members[id] = nil
}

func (rb *rosterBuilder) member(groupID string, m memberIn, path string) error {
	person, ok := model.NormalizePerson(model.Person{
		PID:   firstNonEmpty(m.PID, m.ID),
		Name:  string(m.Name),
		Alias: string(m.Alias),
	})
	if !ok {
		return &model.ValidationError{Op: "import", Field: path + ".pid"}
	}
	rb.group(groupID)
	if idx, exists := rb.index[groupID][person.PID]; exists {
		rb.members[groupID][idx] = person
		return nil
	}
	rb.index[groupID][person.PID] = len(rb.members[groupID])
	rb.members[groupID] = append(rb.members[groupID], person)
	return nil
}

func (rb *rosterBuilder) groups() []model.Group {
	out := make([]model.Group, 0, len(rb.order))
	for _, id := range rb.order {
		out = append(out, model.Group{ID: id, Members: rb.members[id]})
	}
	return out
}
