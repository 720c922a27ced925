package store

import "github.com/verte-zerg/speedlesen/internal/model"

// reconcileRoster returns the roster entries a week write must add: every
// person in the week whose pid is not yet on the roster, in order of first
// appearance. Existing entries are never touched.
func reconcileRoster(roster []model.Person, persons []model.PersonMeasurement) []model.Person {
	known := make(map[string]struct{}, len(roster)+len(persons))
	for _, p := range roster {
		known[p.PID] = struct{}{}
	}
	var added []model.Person
	for _, p := range persons {
		if _, ok := known[p.PID]; ok {
			continue
		}
		known[p.PID] = struct{}{}
		added = append(added, model.Person{PID: p.PID, Name: p.Name, Alias: p.Name})
	}
	return added
}

// upsertMembers merges incoming entries into a roster by pid. New pids are
// appended; existing ones take the incoming name and alias in place.
func upsertMembers(roster, incoming []model.Person) []model.Person {
	index := make(map[string]int, len(roster))
	out := append([]model.Person(nil), roster...)
	for i, p := range out {
		index[p.PID] = i
	}
	for _, p := range incoming {
		if i, ok := index[p.PID]; ok {
			out[i] = p
			continue
		}
		index[p.PID] = len(out)
		out = append(out, p)
	}
	return out
}
