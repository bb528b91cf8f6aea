package store

import (
	"context"
	"testing"

	"github.com/memctl/memctl/internal/memory"
)

func TestWriteLinkAndGetLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustWrite(t, s, "item a")
	b := mustWrite(t, s, "item b")

	if err := s.WriteLink(ctx, memory.Link{SrcID: a.ID, DstID: b.ID, Rel: memory.LinkSupports}); err != nil {
		t.Fatalf("write link: %v", err)
	}

	links, err := s.GetLinks(ctx, a.ID)
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(links) != 1 || links[0].Rel != memory.LinkSupports {
		t.Fatalf("expected 1 supports link, got %+v", links)
	}

	// The link should also be visible from the destination endpoint.
	links, err = s.GetLinks(ctx, b.ID)
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected the link visible from its destination endpoint too, got %+v", links)
	}
}

func TestWriteLinkIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustWrite(t, s, "item a")
	b := mustWrite(t, s, "item b")

	link := memory.Link{SrcID: a.ID, DstID: b.ID, Rel: memory.LinkRefines}
	s.WriteLink(ctx, link)
	if err := s.WriteLink(ctx, link); err != nil {
		t.Fatalf("expected duplicate link insert to be a no-op, got %v", err)
	}

	links, err := s.GetLinks(ctx, a.ID)
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected exactly 1 link after a duplicate insert, got %d", len(links))
	}
}

func TestRemoveLink(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustWrite(t, s, "item a")
	b := mustWrite(t, s, "item b")

	s.WriteLink(ctx, memory.Link{SrcID: a.ID, DstID: b.ID, Rel: memory.LinkContradicts})
	if err := s.RemoveLink(ctx, a.ID, b.ID, memory.LinkContradicts); err != nil {
		t.Fatalf("remove link: %v", err)
	}

	links, err := s.GetLinks(ctx, a.ID)
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected no links after removal, got %+v", links)
	}
}
