package store

import (
	"context"
	"testing"

	"github.com/memctl/memctl/internal/memory"
)

func TestAddAndGetMount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddMount(ctx, memory.Mount{Path: "/repo/docs", Name: "docs"})
	if err != nil {
		t.Fatalf("add mount: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected a minted mount id")
	}

	got, err := s.GetMount(ctx, added.ID)
	if err != nil {
		t.Fatalf("get mount: %v", err)
	}
	if got.Path != "/repo/docs" || got.Name != "docs" {
		t.Fatalf("unexpected mount %+v", got)
	}
}

func TestGetMountByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.AddMount(ctx, memory.Mount{Path: "/repo/src", Name: "src"})

	m, found, err := s.GetMountByPath(ctx, "/repo/src")
	if err != nil {
		t.Fatalf("get mount by path: %v", err)
	}
	if !found || m.Name != "src" {
		t.Fatalf("expected to find the mount by path, got found=%v m=%+v", found, m)
	}

	_, found, err = s.GetMountByPath(ctx, "/nowhere")
	if err != nil {
		t.Fatalf("get mount by path: %v", err)
	}
	if found {
		t.Fatal("expected no mount for an unregistered path")
	}
}

func TestListMountsOrderedByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.AddMount(ctx, memory.Mount{Path: "/z", Name: "z"})
	s.AddMount(ctx, memory.Mount{Path: "/a", Name: "a"})

	mounts, err := s.ListMounts(ctx)
	if err != nil {
		t.Fatalf("list mounts: %v", err)
	}
	if len(mounts) != 2 || mounts[0].Path != "/a" || mounts[1].Path != "/z" {
		t.Fatalf("expected mounts ordered by path, got %+v", mounts)
	}
}

func TestRemoveMount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, _ := s.AddMount(ctx, memory.Mount{Path: "/gone", Name: "gone"})

	if err := s.RemoveMount(ctx, m.ID); err != nil {
		t.Fatalf("remove mount: %v", err)
	}
	if _, err := s.GetMount(ctx, m.ID); err == nil {
		t.Fatal("expected removed mount to no longer be found")
	}
}

func TestRemoveMountUnknownIDErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.RemoveMount(ctx, "MNT-does-not-exist"); err == nil {
		t.Fatal("expected an error removing an unknown mount id")
	}
}
