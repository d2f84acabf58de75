package source_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vasialek/openaio-api/source"
)

func TestDropProduct_Clone(t *testing.T) {
	t.Parallel()

	original := source.DropProduct{Name: "Shell Jacket", Keywords: []string{"Shell", "Jacket"}, Price: "$398"}
	cloned := original.Clone()

	original.Keywords[0] = "changed"
	want := source.DropProduct{Name: "Shell Jacket", Keywords: []string{"Shell", "Jacket"}, Price: "$398"}
	if diff := cmp.Diff(want, cloned); diff != "" {
		t.Errorf("unexpected clone (-want +got):\n%s", diff)
	}
}
