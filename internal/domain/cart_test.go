package domain

import (
	"testing"
	"time"
)

func TestCartAddItem_MergesSameDish(t *testing.T) {
	cart := NewCart("cart-1", "user-1", time.Now().UTC())

	cart.AddItem("dish-1", 2)
	cart.AddItem("dish-1", 3)

	if len(cart.Items) != 1 {
		t.Fatalf("expected exactly one line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("quantity=%d, want 5", cart.Items[0].Quantity)
	}
}

func TestCartAddItem_DropsNonPositiveLines(t *testing.T) {
	cart := NewCart("cart-1", "user-1", time.Now().UTC())
	cart.AddItem("dish-1", 2)
	cart.AddItem("dish-1", -2)
	cart.AddItem("dish-2", 0)

	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}

func TestCartSetItemQuantity(t *testing.T) {
	cart := NewCart("cart-1", "user-1", time.Now().UTC())
	cart.AddItem("dish-1", 1)
	cart.AddItem("dish-2", 1)

	if !cart.SetItemQuantity("dish-1", 4) {
		t.Fatal("expected dish-1 to be found")
	}
	if cart.Items[0].Quantity != 4 {
		t.Fatalf("quantity=%d, want 4", cart.Items[0].Quantity)
	}

	if cart.SetItemQuantity("missing", 7) {
		t.Fatal("expected no-op for missing dish")
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 lines after no-op, got %d", len(cart.Items))
	}

	cart.SetItemQuantity("dish-2", 0)
	if len(cart.Items) != 1 || cart.Items[0].DishID != "dish-1" {
		t.Fatalf("expected dish-2 line removed, got %+v", cart.Items)
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	cart := NewCart("cart-1", "user-1", time.Now().UTC())
	cart.AddItem("dish-1", 1)
	cart.AddItem("dish-2", 2)

	if !cart.RemoveItem("dish-1") {
		t.Fatal("expected dish-1 removed")
	}
	if cart.RemoveItem("dish-1") {
		t.Fatal("expected second removal to report nothing removed")
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Items))
	}

	cart.Clear()
	if !cart.IsEmpty() {
		t.Fatal("expected empty cart after Clear")
	}
}

func TestCartClone_IsIndependent(t *testing.T) {
	cart := NewCart("cart-1", "user-1", time.Now().UTC())
	cart.AddItem("dish-1", 1)

	clone := cart.Clone()
	clone.AddItem("dish-1", 5)
	clone.RemoveItem("dish-1")

	if len(cart.Items) != 1 || cart.Items[0].Quantity != 1 {
		t.Fatalf("original cart mutated through clone: %+v", cart.Items)
	}
}
