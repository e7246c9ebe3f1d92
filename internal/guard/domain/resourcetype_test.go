package domain

import (
	"testing"
	"time"
)

func TestParseResourceType(t *testing.T) {
	for _, tag := range []string{"main_frame", "sub_frame", "stylesheet", "script",
		"image", "object", "xmlhttprequest", "other"} {
		typ, err := ParseResourceType(tag)
		if err != nil {
			t.Errorf("ParseResourceType(%q): %v", tag, err)
		}
		if string(typ) != tag {
			t.Errorf("ParseResourceType(%q) gave %q", tag, typ)
		}
	}
	if _, err := ParseResourceType("video"); err == nil {
		t.Error("expected error for unknown tag")
	}
	if _, err := ParseResourceType(""); err == nil {
		t.Error("expected error for empty tag")
	}
}

func TestResourceType_IsFrame(t *testing.T) {
	if !ResourceTypeMainFrame.IsFrame() || !ResourceTypeSubFrame.IsFrame() {
		t.Error("frame types must report IsFrame")
	}
	if ResourceTypeScript.IsFrame() || ResourceTypeImage.IsFrame() {
		t.Error("content types must not report IsFrame")
	}
}

func TestTypeCatalog_ExcludesMainFrame(t *testing.T) {
	seen := make(map[int64]bool)
	for _, e := range TypeCatalog {
		if e.Tag == ResourceTypeMainFrame {
			t.Error("main_frame must not be cataloged as a resource")
		}
		if !e.Tag.Valid() {
			t.Errorf("catalog entry %q has invalid tag", e.Name)
		}
		if seen[e.ID] {
			t.Errorf("catalog id %d is duplicated", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestNewSite_Validation(t *testing.T) {
	now := time.Now()
	if _, err := NewSite("", now); err == nil {
		t.Error("expected error for empty site name")
	}
	if _, err := NewSite("   ", now); err == nil {
		t.Error("expected error for blank site name")
	}
	s, err := NewSite("example.com", now)
	if err != nil {
		t.Fatalf("NewSite: %v", err)
	}
	if s.Blocked != BlockStateUnknown {
		t.Errorf("new site must start unknown, got %v", s.Blocked)
	}
	if s.Checked() {
		t.Error("new site must not report a reputation check")
	}
}

func TestNewResource_Validation(t *testing.T) {
	now := time.Now()
	if _, err := NewResource("", ResourceTypeScript, now); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewResource("https://cdn.example.com/a.js", "bogus", now); err == nil {
		t.Error("expected error for invalid type")
	}
	r, err := NewResource("https://cdn.example.com/a.js", ResourceTypeScript, now)
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}
	if r.Blocked != BlockStateUnknown {
		t.Errorf("new resource must start unknown, got %v", r.Blocked)
	}
}

func TestVerdict_BlockState(t *testing.T) {
	if VerdictAllowed.BlockState() != BlockStateAllowed {
		t.Error("allowed verdict must map to allowed state")
	}
	if VerdictBlocked.BlockState() != BlockStateBlocked {
		t.Error("blocked verdict must map to blocked state")
	}
	if VerdictUnknown.BlockState() != BlockStateUnknown {
		t.Error("unknown verdict must map to unknown state")
	}
}

func TestRequest_FromHostTab(t *testing.T) {
	if (Request{TabID: -1}).FromHostTab() {
		t.Error("negative tab ids are host-internal")
	}
	if !(Request{TabID: 0}).FromHostTab() {
		t.Error("tab id 0 is a valid tab")
	}
}
