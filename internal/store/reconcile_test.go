package store

import (
	"reflect"
	"testing"

	"github.com/verte-zerg/speedlesen/internal/model"
)

func TestReconcileRoster(t *testing.T) {
	roster := []model.Person{{PID: "a1", Name: "Ann", Alias: "Annie"}}
	persons := []model.PersonMeasurement{
		{PID: "a2", Name: "Ben"},
		{PID: "a1", Name: "Ann B."},
		{PID: "a3", Name: "Cleo"},
		{PID: "a2", Name: "Ben again"},
	}

	got := reconcileRoster(roster, persons)
	want := []model.Person{
		{PID: "a2", Name: "Ben", Alias: "Ben"},
		{PID: "a3", Name: "Cleo", Alias: "Cleo"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reconcileRoster = %+v, want %+v", got, want)
	}
	if roster[0].Alias != "Annie" {
		t.Fatalf("existing entry changed: %+v", roster[0])
	}
}

func TestReconcileRosterNothingNew(t *testing.T) {
	roster := []model.Person{{PID: "a1", Name: "Ann", Alias: "Ann"}}
	if got := reconcileRoster(roster, []model.PersonMeasurement{{PID: "a1", Name: "Ann"}}); len(got) != 0 {
		t.Fatalf("expected no additions, got %+v", got)
	}
}

func TestUpsertMembers(t *testing.T) {
	roster := []model.Person{
		{PID: "a1", Name: "Ann", Alias: "Ann"},
		{PID: "a2", Name: "Ben", Alias: "Ben"},
	}
	got := upsertMembers(roster, []model.Person{
		{PID: "a3", Name: "Cleo", Alias: "Cleo"},
		{PID: "a1", Name: "Anna", Alias: "Anni"},
	})
	want := []model.Person{
		{PID: "a1", Name: "Anna", Alias: "Anni"},
		{PID: "a2", Name: "Ben", Alias: "Ben"},
		{PID: "a3", Name: "Cleo", Alias: "Cleo"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("upsertMembers = %+v, want %+v", got, want)
	}
	if roster[0].Name != "Ann" {
		t.Fatalf("input roster mutated: %+v", roster[0])
	}
}
