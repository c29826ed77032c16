package ordmap

import (
	"testing"
)

func TestMap(t *testing.T) {
	om := New[string, int]()
	om.Add("key0", 0)
	om.Add("key1", 1)
	om.Add("key2", 2)

	if v, ok := om.ValueByKeyTry("key1"); !ok || v != 1 {
		t.Error("ValByKey")
	}

	if i, ok := om.IndexByKeyTry("key2"); !ok || i != 2 {
		t.Error("IndexByKey")
	}

	if om.KeyByIndex(0) != "key0" {
		t.Error("KeyByIndex")
	}

	if om.ValueByIndex(1) != 1 {
		t.Error("ValByIndex")
	}

	if om.Len() != 3 {
		t.Error("Len")
	}

	om.DeleteIndex(1, 2)
	if om.ValueByIndex(1) != 2 {
		t.Error("DeleteIndex")
	}
	if i, ok := om.IndexByKeyTry("key2"); !ok || i != 1 {
		t.Error("Delete IndexByKey")
	}

	om.InsertAtIndex(0, "new0", 3)
	if om.ValueByIndex(0) != 3 {
		t.Error("InsertAtIndex ValByIndex 0")
	}
	if om.ValueByIndex(1) != 0 {
		t.Error("InsertAtIndex ValByIndex 1")
	}
	if i, ok := om.IndexByKeyTry("key2"); !ok || i != 2 {
		t.Errorf("InsertAtIndex IndexByKey: %d != 2", i)
	}

	nm := Make([]KeyValue[string, int]{{"one", 1}, {"two", 2}, {"three", 3}})

	if nm.ValueByIndex(2) != 3 {
		t.Error("Make ValByIndex 2")
	}
	if nm.ValueByIndex(1) != 2 {
		t.Error("Make ValByIndex 1")
	}
	if val, ok := nm.ValueByKeyTry("three"); !ok || val != 3 {
		t.Error("Make ValByKey 3")
	}
}

// Add on an existing key overwrites the value in place without
// disturbing insertion order.
func TestMapAddOverwritesExistingKey(t *testing.T) {
	om := New[string, int]()
	om.Add("a", 1)
	om.Add("b", 2)
	om.Add("a", 99)

	if om.Len() != 2 {
		t.Error("Add overwrite must not grow Len")
	}
	if v, _ := om.ValueByKeyTry("a"); v != 99 {
		t.Error("Add overwrite must replace the value")
	}
	if om.KeyByIndex(0) != "a" {
		t.Error("Add overwrite must not change order")
	}
}
