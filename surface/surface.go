// Package surface defines the rendering surface the harvester drives: an
// isolated browser session offering navigation, DOM queries, and
// human-input primitives. The production implementation is backed by Rod;
// tests substitute in-memory fakes.
package surface

import "context"

// Element is one DOM element handle.
type Element interface {
	// Text returns the element's visible text.
	Text() (string, error)

	// Visible reports whether the element is rendered and on-screen.
	Visible() (bool, error)

	// Enabled reports whether the element accepts interaction.
	Enabled() (bool, error)

	// ScrollIntoView scrolls the page until the element is in the viewport.
	ScrollIntoView() error

	// Click performs a left mouse click on the element.
	Click() error
}

// Surface is one isolated rendering session. A Surface is exclusively
// owned by a single item and must be closed (never reused) when the item
// finishes, so cookie and fingerprint state does not leak between items.
type Surface interface {
	// Navigate loads the given URL and waits for the DOM to settle.
	Navigate(ctx context.Context, url string) error

	// Elements returns all elements matching the CSS selector in DOM order.
	Elements(selector string) ([]Element, error)

	// Count is a cheap probe for the number of elements matching selector,
	// evaluated in-page without materializing element handles.
	Count(selector string) (int, error)

	// Eval executes a script in the page, discarding its result.
	Eval(js string) error

	// ScrollTop returns the current vertical scroll offset in pixels.
	ScrollTop() (int, error)

	// Wheel performs one pointer-wheel motion of deltaY pixels.
	Wheel(deltaY float64) error

	// HTML returns the current rendered document as an HTML snapshot.
	HTML() (string, error)

	// Close destroys the session and all its state.
	Close() error
}

// Factory creates isolated sessions. Exactly one session per item; the
// orchestrator closes it unconditionally before starting the next item.
type Factory interface {
	NewSession(ctx context.Context) (Surface, error)
}
