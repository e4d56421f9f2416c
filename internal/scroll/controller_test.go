// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package scroll

import (
	"sync"
	"testing"
)

func TestNewController_StartsFollowing(t *testing.T) {
	c := NewController(DefaultTolerance)
	if c.State() != Following {
		t.Errorf("State() = %v, want following", c.State())
	}
	if f := c.Flags(); !f.AutoFollow || f.UserHasScrolledAway {
		t.Errorf("Flags() = %+v, want AutoFollow only", f)
	}
}

func TestNewController_NegativeTolerance(t *testing.T) {
	if got := NewController(-5).Tolerance(); got != 0 {
		t.Errorf("Tolerance() = %d, want 0", got)
	}
}

func TestOnUserScroll(t *testing.T) {
	tests := []struct {
		name          string
		offset        int
		viewHeight    int
		contentHeight int
		want          State
	}{
		{"at bottom", 500, 500, 1000, Following},
		{"within tolerance", 460, 500, 1000, Following},
		{"exactly at tolerance", 450, 500, 1000, Following},
		{"just past tolerance", 449, 500, 1000, Held},
		{"scrolled to top", 0, 500, 1000, Held},
		{"content fits view", 0, 500, 200, Following},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(50)
			if got := c.OnUserScroll(tt.offset, tt.viewHeight, tt.contentHeight); got != tt.want {
				t.Errorf("OnUserScroll(%d, %d, %d) = %v, want %v",
					tt.offset, tt.viewHeight, tt.contentHeight, got, tt.want)
			}
		})
	}
}

func TestHeldIgnoresContentChanges(t *testing.T) {
	c := NewController(50)
	c.OnUserScroll(0, 500, 5000)

	for i := 0; i < 100; i++ {
		if d := c.OnContentChanged(); d != None {
			t.Fatalf("OnContentChanged() #%d = %v, want none while held", i, d)
		}
	}
	if c.State() != Held {
		t.Errorf("State() = %v, want held", c.State())
	}
	if f := c.Flags(); f.AutoFollow || !f.UserHasScrolledAway {
		t.Errorf("Flags() = %+v, want UserHasScrolledAway only", f)
	}
}

func TestFollowingSnapsOnContentChange(t *testing.T) {
	c := NewController(50)
	if d := c.OnContentChanged(); d != SnapToBottom {
		t.Errorf("OnContentChanged() = %v, want snap", d)
	}
}

func TestUserMessageOverridesHeld(t *testing.T) {
	c := NewController(50)
	c.OnUserScroll(0, 500, 5000)

	if d := c.OnUserMessage(); d != SnapToBottom {
		t.Errorf("OnUserMessage() = %v, want snap", d)
	}
	if c.State() != Following {
		t.Errorf("State() = %v, want following", c.State())
	}
}

func TestScrollToBottomAnimates(t *testing.T) {
	c := NewController(50)
	c.OnUserScroll(0, 500, 5000)

	if d := c.OnScrollToBottom(); d != AnimateToBottom {
		t.Errorf("OnScrollToBottom() = %v, want animate", d)
	}
	if c.State() != Following {
		t.Errorf("State() = %v, want following", c.State())
	}
}

func TestScrollBackToBottomResumesFollowing(t *testing.T) {
	c := NewController(50)
	c.OnUserScroll(0, 500, 5000)
	c.OnUserScroll(4480, 500, 5000)
	if c.State() != Following {
		t.Errorf("State() = %v, want following after returning near bottom", c.State())
	}
}

func TestDistanceFromBottom(t *testing.T) {
	if got := DistanceFromBottom(10, 20, 100); got != 70 {
		t.Errorf("DistanceFromBottom(10, 20, 100) = %d, want 70", got)
	}
	if got := DistanceFromBottom(0, 20, 5); got != 0 {
		t.Errorf("DistanceFromBottom(0, 20, 5) = %d, want 0", got)
	}
}

func TestStrings(t *testing.T) {
	if Following.String() != "following" || Held.String() != "held" {
		t.Errorf("State strings = %q/%q", Following, Held)
	}
	if SnapToBottom.String() != "snap" || AnimateToBottom.String() != "animate" || None.String() != "none" {
		t.Errorf("Directive strings = %q/%q/%q", SnapToBottom, AnimateToBottom, None)
	}
}

func TestController_ConcurrentAccess(t *testing.T) {
	c := NewController(50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.OnUserMessage()
		}()
		go func(i int) {
			defer wg.Done()
			c.OnUserScroll(i*10, 100, 1000)
			c.OnContentChanged()
		}(i)
	}
	wg.Wait()
	_ = c.State()
}
