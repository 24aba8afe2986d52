// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"testing"

	"github.com/mireva/rtcore/engine/material"
)

func TestLookupUnknownHandle(t *testing.T) {
	if _, err := lookup(newHandle()); Kind(err) != WrongInstance {
		t.Fatalf("lookup(unknown handle): Kind = %v, want WrongInstance", Kind(err))
	}
}

func TestDestroyUnknownHandle(t *testing.T) {
	if err := Destroy(newHandle()); Kind(err) != WrongInstance {
		t.Fatalf("Destroy(unknown handle): Kind = %v, want WrongInstance", Kind(err))
	}
}

func TestNonZero(t *testing.T) {
	if v := nonZero(0, 42); v != 42 {
		t.Fatalf("nonZero(0, 42) = %d, want 42", v)
	}
	if v := nonZero(7, 42); v != 7 {
		t.Fatalf("nonZero(7, 42) = %d, want 7", v)
	}
	if v := nonZero(-1, 42); v != 42 {
		t.Fatalf("nonZero(-1, 42) = %d, want 42", v)
	}
}

func TestTranslateMaterialErr(t *testing.T) {
	cases := []struct {
		in   error
		want ErrorKind
	}{
		{nil, Success},
		{errors.New("not a *material.Error"), GenericError},
		{&material.Error{Kind: material.WrongArgument}, WrongArgument},
		{&material.Error{Kind: material.WrongInstance}, WrongInstance},
		{&material.Error{Kind: material.CannotUpdateDynamicMaterial}, CannotUpdateDynamicMaterial},
		{&material.Error{Kind: material.CannotUpdateAnimatedMaterial}, CannotUpdateAnimatedMaterial},
	}
	for _, c := range cases {
		if have := Kind(translateMaterialErr(c.in)); have != c.want {
			t.Fatalf("translateMaterialErr(%v): Kind = %v, want %v", c.in, have, c.want)
		}
	}
}
