package vk

import "testing"

func TestRequiredExtensionsSupported(t *testing.T) {
	available := []string{"VK_KHR_swapchain", "VK_KHR_ray_query"}

	if !RequiredExtensionsSupported(available, []string{"VK_KHR_swapchain"}) {
		t.Error("expected all-required-present to report supported")
	}
	if RequiredExtensionsSupported(available, []string{"VK_KHR_swapchain", "VK_KHR_missing"}) {
		t.Error("a single missing required extension must fail the whole device")
	}
	if !RequiredExtensionsSupported(available, nil) {
		t.Error("no required extensions must always be supported")
	}
}

func TestDedupExtensions(t *testing.T) {
	in := []string{"VK_KHR_ray_query", "VK_KHR_swapchain", "VK_KHR_ray_query"}
	got := DedupExtensions(in)
	want := []string{"VK_KHR_ray_query", "VK_KHR_swapchain"}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d = %q, want %q", i, got[i], want[i])
		}
	}
}
