package browser

import "github.com/webpilot-ai/webpilot/internal/annotate"

// resolveClickScript picks the click target for an identifier and marks it
// with the target attribute. Resolution order:
//  1. exact text match over the highlighted inventory, across
//     textContent, value, aria-label, title, and placeholder
//  2. substring match over the same fields
//  3. the standard interactive selectors, same two passes
//  4. for purely numeric identifiers, the numbered badge label
//
// Returns true when a target was marked.
const resolveClickScript = `(identifier) => {
	document.querySelectorAll('[` + targetAttr + `]').forEach(el => el.removeAttribute('` + targetAttr + `'));

	const wanted = (identifier || '').trim();
	if (!wanted) return false;
	const wantedLower = wanted.toLowerCase();

	const fieldsOf = (el) => {
		const out = [(el.innerText || el.textContent || '')];
		for (const attr of ['value', 'aria-label', 'title', 'placeholder']) {
			out.push(el.getAttribute(attr) || '');
		}
		return out.map(s => s.trim()).filter(s => s);
	};

	const visible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) return false;
		const cs = window.getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden';
	};

	const pick = (pool) => {
		for (const el of pool) {
			if (fieldsOf(el).some(f => f.toLowerCase() === wantedLower)) return el;
		}
		for (const el of pool) {
			if (fieldsOf(el).some(f => f.toLowerCase().includes(wantedLower))) return el;
		}
		return null;
	};

	const highlighted = Array.from(document.querySelectorAll('.` + annotate.HighlightClass + `')).filter(visible);
	let target = pick(highlighted);

	if (!target) {
		const generic = Array.from(document.querySelectorAll(
			'a, button, [role="button"], [onclick], [tabindex], input[type="submit"], input[type="button"], select'
		)).filter(visible);
		target = pick(generic);
	}

	if (!target && /^[0-9]+$/.test(wanted)) {
		target = document.querySelector('[` + annotate.LabelAttr + `="' + wanted + '"]');
		if (target && !visible(target)) target = null;
	}

	if (!target) return false;
	target.setAttribute('` + targetAttr + `', '1');
	return true;
}`

// resolveFieldScript picks the input field for a matcher and marks it with
// the target attribute. Fields are matched by placeholder, associated label,
// aria-label, name, or id: substring, case-insensitive, first visible match
// wins.
const resolveFieldScript = `(matcher) => {
	document.querySelectorAll('[` + targetAttr + `]').forEach(el => el.removeAttribute('` + targetAttr + `'));

	const wanted = (matcher || '').trim().toLowerCase();
	if (!wanted) return false;

	const visible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) return false;
		const cs = window.getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden';
	};

	const labelText = (el) => {
		if (el.labels && el.labels.length > 0) {
			return Array.from(el.labels).map(l => l.innerText || '').join(' ');
		}
		if (el.id) {
			const lbl = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (lbl) return lbl.innerText || '';
		}
		return '';
	};

	const inputs = Array.from(document.querySelectorAll(
		'input:not([type="hidden"]), textarea, [contenteditable="true"]'
	)).filter(visible);

	for (const el of inputs) {
		const haystack = [
			el.getAttribute('placeholder') || '',
			labelText(el),
			el.getAttribute('aria-label') || '',
			el.getAttribute('name') || '',
			el.id || '',
		].join(' ').toLowerCase();
		if (haystack.includes(wanted)) {
			el.setAttribute('` + targetAttr + `', '1');
			return true;
		}
	}
	return false;
}`

// markSearchInputScript locates a visible search input via a prioritized
// selector list and marks it with the target attribute.
const markSearchInputScript = `() => {
	document.querySelectorAll('[` + targetAttr + `]').forEach(el => el.removeAttribute('` + targetAttr + `'));

	const visible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) return false;
		const cs = window.getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden';
	};

	const selectors = [
		'input[type="search"]',
		'input[name="q"]',
		'input[name="query"]',
		'input[name="search"]',
		'input[role="searchbox"]',
		'#twotabsearchtextbox',
		'#search_form_input',
		'#sb_form_q',
		'input[aria-label*="earch"]',
		'input[placeholder*="earch"]',
		'input[type="text"]',
	];

	for (const sel of selectors) {
		let el;
		try {
			el = document.querySelector(sel);
		} catch (e) {
			continue;
		}
		if (el && visible(el)) {
			el.setAttribute('` + targetAttr + `', '1');
			return true;
		}
	}
	return false;
}`
