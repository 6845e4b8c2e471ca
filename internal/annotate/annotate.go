// Package annotate injects the visual overlay the vision model sees in
// screenshots: red outlines on every visible clickable and numbered yellow
// badges on the ones that carry no textual identifier.
package annotate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
)

// DOM markers used by the injected scripts. Clear removes everything that
// carries one of these.
const (
	styleID        = "wp-annotation-style"
	HighlightClass = "wp-highlight"
	badgeClass     = "wp-badge"
	LabelAttr      = "data-wp-label"
	indexAttr      = "data-wp-index"
)

// Element is one entry of the clickable inventory extracted during
// annotation. Label is the badge number, or 0 when the element has a
// textual identifier and therefore no badge.
type Element struct {
	Index       int    `json:"index"`
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	AriaLabel   string `json:"ariaLabel"`
	Placeholder string `json:"placeholder"`
	Label       int    `json:"label"`
}

// Annotator applies and removes the overlay on one page.
type Annotator struct {
	page *rod.Page
}

// New creates an Annotator bound to the given page.
func New(page *rod.Page) *Annotator {
	return &Annotator{page: page}
}

// Annotate clears any previous overlay and applies a fresh one, returning
// the inventory of highlighted elements. Badge numbering is assigned by
// document order among unlabeled elements and stays stable until the next
// Annotate or Clear.
func (a *Annotator) Annotate(ctx context.Context) ([]Element, error) {
	res, err := a.page.Context(ctx).Eval(annotateScript)
	if err != nil {
		return nil, fmt.Errorf("annotate page: %w", err)
	}
	return ParseInventory([]byte(res.Value.Str()))
}

// Clear removes every injected style, class, attribute, and badge.
func (a *Annotator) Clear(ctx context.Context) error {
	if _, err := a.page.Context(ctx).Eval(clearScript); err != nil {
		return fmt.Errorf("clear annotations: %w", err)
	}
	return nil
}

// ParseInventory decodes the JSON inventory produced by the annotation
// script.
func ParseInventory(data []byte) ([]Element, error) {
	var elements []Element
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("parse annotation inventory: %w", err)
	}
	return elements, nil
}

// clearScript removes all overlay residue. It must be safe to run on a page
// that was never annotated.
const clearScript = `() => {
	const style = document.getElementById('` + styleID + `');
	if (style) style.remove();
	document.querySelectorAll('.` + badgeClass + `').forEach(b => b.remove());
	document.querySelectorAll('.` + HighlightClass + `').forEach(el => {
		el.classList.remove('` + HighlightClass + `');
		el.removeAttribute('` + LabelAttr + `');
		el.removeAttribute('` + indexAttr + `');
	});
}`

// annotateScript clears first (idempotence), then outlines every visible
// clickable and badges the ones without a textual identifier. Returns the
// inventory as a JSON string.
const annotateScript = `() => {
	// Idempotence: remove any previous overlay first
	const oldStyle = document.getElementById('` + styleID + `');
	if (oldStyle) oldStyle.remove();
	document.querySelectorAll('.` + badgeClass + `').forEach(b => b.remove());
	document.querySelectorAll('.` + HighlightClass + `').forEach(el => {
		el.classList.remove('` + HighlightClass + `');
		el.removeAttribute('` + LabelAttr + `');
		el.removeAttribute('` + indexAttr + `');
	});

	const style = document.createElement('style');
	style.id = '` + styleID + `';
	style.textContent =
		'.` + HighlightClass + ` { outline: 2px solid red !important; outline-offset: 1px !important; }' +
		'.` + badgeClass + ` { position: absolute; z-index: 2147483647; background: yellow; color: black;' +
		' font: bold 12px/1 monospace; padding: 2px 4px; border: 1px solid black; border-radius: 3px;' +
		' pointer-events: none; }';
	document.head.appendChild(style);

	const isVisible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) return false;
		if (rect.bottom < 0 || rect.right < 0) return false;
		if (rect.top > window.innerHeight || rect.left > window.innerWidth) return false;
		let node = el;
		while (node && node !== document.body) {
			const cs = window.getComputedStyle(node);
			if (cs.display === 'none' || cs.visibility === 'hidden') return false;
			node = node.parentElement;
		}
		return true;
	};

	const textIdentifier = (el) => {
		const text = (el.innerText || el.textContent || '').trim();
		if (text) return text;
		for (const attr of ['value', 'aria-label', 'title', 'placeholder']) {
			const v = (el.getAttribute(attr) || '').trim();
			if (v) return v;
		}
		return '';
	};

	const candidates = document.querySelectorAll(
		'a, button, [role="button"], [onclick], [tabindex], ' +
		'input[type="submit"], input[type="button"], select'
	);

	const inventory = [];
	const seen = new Set();
	let index = 0;
	let nextLabel = 1;

	candidates.forEach(el => {
		if (seen.has(el) || !isVisible(el)) return;
		seen.add(el);

		index++;
		el.classList.add('` + HighlightClass + `');
		el.setAttribute('` + indexAttr + `', String(index));

		const text = textIdentifier(el);
		let label = 0;
		if (!text) {
			label = nextLabel++;
			el.setAttribute('` + LabelAttr + `', String(label));
			const rect = el.getBoundingClientRect();
			const badge = document.createElement('div');
			badge.className = '` + badgeClass + `';
			badge.textContent = String(label);
			badge.style.left = (rect.left + window.scrollX) + 'px';
			badge.style.top = (rect.top + window.scrollY - 25) + 'px';
			document.body.appendChild(badge);
		}

		inventory.push({
			index: index,
			tag: el.tagName.toLowerCase(),
			text: text.slice(0, 200),
			ariaLabel: (el.getAttribute('aria-label') || '').trim(),
			placeholder: (el.getAttribute('placeholder') || '').trim(),
			label: label,
		});
	});

	return JSON.stringify(inventory);
}`
