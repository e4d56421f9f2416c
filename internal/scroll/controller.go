// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scroll decides when a chat transcript view should follow new
// content and when it should stay where the user put it.
package scroll

import "sync"

// DefaultTolerance is the distance from the bottom, in the render surface's
// units, that still counts as "at the bottom".
const DefaultTolerance = 50

// State is the follow mode of the view.
type State int

const (
	// Following keeps the view pinned to the newest content.
	Following State = iota
	// Held leaves the view where the user scrolled it.
	Held
)

// String returns the state name.
func (s State) String() string {
	if s == Held {
		return "held"
	}
	return "following"
}

// Directive tells the render surface how to move the view after an event.
type Directive int

const (
	// None leaves the view where it is.
	None Directive = iota
	// SnapToBottom jumps to the bottom without animation.
	SnapToBottom
	// AnimateToBottom scrolls to the bottom smoothly.
	AnimateToBottom
)

// String returns the directive name.
func (d Directive) String() string {
	switch d {
	case SnapToBottom:
		return "snap"
	case AnimateToBottom:
		return "animate"
	default:
		return "none"
	}
}

// ScrollState is the flag view of a controller's state.
type ScrollState struct {
	AutoFollow          bool
	UserHasScrolledAway bool
}

// Controller is the follow/hold state machine. The render surface reports
// user scrolls and content changes; the controller answers with a directive.
//
// A user send is the only event that overrides a Held state. Content changes
// never move a Held view.
//
// Controller is safe for concurrent use: the stream driver resets it from its
// own goroutine while the render loop reports scroll positions.
type Controller struct {
	mu        sync.Mutex
	state     State
	tolerance int
}

// NewController creates a controller in the Following state. A negative
// tolerance is treated as zero.
func NewController(tolerance int) *Controller {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Controller{state: Following, tolerance: tolerance}
}

// State returns the current follow mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Flags returns the state as AutoFollow/UserHasScrolledAway flags.
func (c *Controller) Flags() ScrollState {
	following := c.State() == Following
	return ScrollState{AutoFollow: following, UserHasScrolledAway: !following}
}

// Tolerance returns the at-bottom distance threshold.
func (c *Controller) Tolerance() int {
	return c.tolerance
}

// OnUserMessage handles the user sending a message: always follow, and jump.
func (c *Controller) OnUserMessage() Directive {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Following
	return SnapToBottom
}

// OnContentChanged handles any transcript mutation.
func (c *Controller) OnContentChanged() Directive {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Following {
		return SnapToBottom
	}
	return None
}

// OnUserScroll handles a scroll gesture that left the view at offset (top
// of the visible window) with the given viewport and content heights.
func (c *Controller) OnUserScroll(offset, viewHeight, contentHeight int) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if DistanceFromBottom(offset, viewHeight, contentHeight) <= c.tolerance {
		c.state = Following
	} else {
		c.state = Held
	}
	return c.state
}

// OnScrollToBottom handles the explicit "jump to bottom" action.
func (c *Controller) OnScrollToBottom() Directive {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Following
	return AnimateToBottom
}

// DistanceFromBottom returns how far the bottom edge of the view is from
// the end of the content. Content shorter than the view is always at the
// bottom.
func DistanceFromBottom(offset, viewHeight, contentHeight int) int {
	d := contentHeight - (offset + viewHeight)
	if d < 0 {
		return 0
	}
	return d
}
