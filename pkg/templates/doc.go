// Package templates maps template identifiers to renderers that turn
// structured payloads into HTML and plain-text email bodies.
//
// The registry is explicit: every template id must be registered before use,
// and looking up an unknown id fails with ErrUnknownTemplate instead of
// silently falling back to dumping raw data. Payloads are validated against
// the template's declared schema before rendering, so malformed data is
// rejected before a delivery attempt consumes a log record.
//
// Renderers are plain interfaces, so a host application can swap the
// built-in html/template implementations for any other rendering engine
// without touching delivery or retry logic.
//
// # Usage
//
//	reg := templates.NewRegistry()
//	welcome, err := templates.NewHTMLTemplate(welcomeHTML, welcomeText, "userName", "dashboardUrl")
//	if err != nil {
//	    // handle error
//	}
//	if err := reg.Register("welcome", welcome); err != nil {
//	    // handle error
//	}
//
//	r, err := reg.Get("welcome")
//	html, text, err := r.Render(map[string]any{
//	    "userName":     "Ali",
//	    "dashboardUrl": "https://example.com/dash",
//	})
package templates
