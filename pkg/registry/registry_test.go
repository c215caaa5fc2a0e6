package registry

import (
	"context"
	"testing"

	"github.com/vanderheijden86/chartsync/pkg/chart"
)

func newChart(id string) *chart.Base {
	return chart.NewBase(id, func(context.Context, chart.Request) (any, error) { return nil, nil })
}

func ids(list []chart.Refreshable) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ChartID()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegister_DefaultGroupAndDedup(t *testing.T) {
	r := New()
	a := newChart("a")
	r.Register(a)
	r.Register(a)
	r.Register(newChart("b"))

	if got := ids(r.List(DefaultGroup)); !equal(got, []string{"a", "b"}) {
		t.Fatalf("List(default) = %v", got)
	}
}

func TestListAll_DedupsAcrossGroups(t *testing.T) {
	r := New()
	a, b, c := newChart("a"), newChart("b"), newChart("c")
	r.Register(a, "g1", "g2")
	r.Register(b, "g2")
	r.Register(c, "g1")

	if got := ids(r.ListAll()); !equal(got, []string{"a", "c", "b"}) {
		t.Fatalf("ListAll = %v, want [a c b]", got)
	}
}

func TestDeregister(t *testing.T) {
	r := New()
	a, b := newChart("a"), newChart("b")
	r.Register(a, "g1", "g2")
	r.Register(b, "g1")

	r.Deregister(a, "g1")
	if r.Has("g1", "a") || !r.Has("g2", "a") {
		t.Fatal("Deregister with group should only touch that group")
	}

	r.Deregister(a)
	if r.Has("g2", "a") {
		t.Fatal("Deregister without groups should remove everywhere")
	}
	if got := r.Groups(); !equal(got, []string{"g1"}) {
		t.Fatalf("empty groups should be dropped, got %v", got)
	}
}

func TestClear(t *testing.T) {
	r := New()
	r.Register(newChart("a"), "g1")
	r.Register(newChart("b"), "g2")

	r.Clear("g1")
	if len(r.List("g1")) != 0 || len(r.List("g2")) != 1 {
		t.Fatal("Clear(g1) should only drop g1")
	}
	r.Clear()
	if len(r.ListAll()) != 0 {
		t.Fatal("Clear() should drop everything")
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	r := New()
	r.Register(newChart("a"), "g")
	list := r.List("g")
	list[0] = newChart("z")
	if r.List("g")[0].ChartID() != "a" {
		t.Fatal("mutating List result changed the registry")
	}
}
