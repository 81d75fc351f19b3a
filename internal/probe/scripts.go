package probe

import "encoding/json"

// Inline scripts injected into the target page. Every entry is
// syntax-checked at runner construction so a typo fails before any browser
// traffic happens.

const findLoginFrameJS = `(() => {
	const iframes = Array.from(document.querySelectorAll('iframe'));
	for (let i = 0; i < iframes.length; i++) {
		const iframe = iframes[i];
		try {
			const doc = iframe.contentDocument;
			if (!doc) continue;
			const hasLoginForm = doc.querySelector('form') !== null;
			const hasPasswordInput = doc.querySelector('input[type="password"]') !== null;
			const hasSignInText = doc.body && doc.body.textContent.includes('Sign In');
			const hasUserLoginSrc = iframe.src.includes('user_login');
			if (hasLoginForm || hasPasswordInput || hasSignInText || hasUserLoginSrc) {
				return {
					found: true,
					index: i,
					src: iframe.src,
					crossOrigin: false,
					inputCount: doc.querySelectorAll('input').length,
					formCount: doc.querySelectorAll('form').length
				};
			}
		} catch (e) {
			if (iframe.src.includes('login') || iframe.src.includes('auth')) {
				return { found: true, index: i, src: iframe.src, crossOrigin: true };
			}
		}
	}
	return { found: false, iframeCount: iframes.length };
})()`

// frameHTMLTemplate takes the frame index and returns the document HTML of a
// same-origin iframe so the form can be inspected server-side.
const frameHTMLTemplate = `((frameIndex) => {
	const iframe = document.querySelectorAll('iframe')[frameIndex];
	if (!iframe) return { success: false, reason: 'login iframe is gone' };
	const doc = iframe.contentDocument;
	if (!doc) return { success: false, reason: 'cannot access iframe document' };
	return { success: true, html: doc.documentElement.outerHTML };
})`

// fillLoginTemplate takes the frame index, credentials and the discovered
// field selectors as JSON-encoded values. Empty selectors fall back to
// positional input order. Values are set directly and input/change events
// are dispatched so framework bindings notice.
const fillLoginTemplate = `((frameIndex, username, password, userSelector, passSelector) => {
	const iframe = document.querySelectorAll('iframe')[frameIndex];
	if (!iframe) return { success: false, reason: 'login iframe is gone' };
	const doc = iframe.contentDocument;
	if (!doc) return { success: false, reason: 'cannot access iframe document' };
	let userInput = userSelector ? doc.querySelector(userSelector) : null;
	let passInput = passSelector ? doc.querySelector(passSelector) : null;
	if (!userInput || !passInput) {
		const inputs = doc.querySelectorAll('input');
		if (inputs.length < 2) return { success: false, reason: 'not enough input fields' };
		userInput = userInput || inputs[0];
		passInput = passInput || inputs[1];
	}
	userInput.value = username;
	userInput.dispatchEvent(new Event('input', { bubbles: true }));
	userInput.dispatchEvent(new Event('change', { bubbles: true }));
	passInput.value = password;
	passInput.dispatchEvent(new Event('input', { bubbles: true }));
	passInput.dispatchEvent(new Event('change', { bubbles: true }));
	return { success: true, username: userInput.value, passwordLength: passInput.value.length };
})`

const submitLoginTemplate = `((frameIndex) => {
	const iframe = document.querySelectorAll('iframe')[frameIndex];
	if (!iframe) return { success: false, reason: 'login iframe is gone' };
	const doc = iframe.contentDocument;
	if (!doc) return { success: false, reason: 'cannot access iframe document' };
	let btn = doc.querySelector('button[type="submit"]');
	if (!btn) {
		btn = Array.from(doc.querySelectorAll('button'))
			.find(b => b.textContent.includes('Sign'));
	}
	if (!btn) return { success: false, reason: 'no submit button found' };
	if (btn.disabled) return { success: false, reason: 'submit button is disabled' };
	btn.click();
	return { success: true, text: btn.textContent.trim() };
})`

// findCloseButtonJS looks for the welcome modal's close control in the page
// and in same-origin iframes, returning viewport coordinates to click.
const findCloseButtonJS = `(() => {
	let closeBtn = document.querySelector('.modal .close, .modal button.close, [data-dismiss="modal"], .modal-header button');
	if (!closeBtn) {
		const iframes = Array.from(document.querySelectorAll('iframe'));
		for (const iframe of iframes) {
			try {
				const doc = iframe.contentDocument;
				if (!doc) continue;
				const btn = doc.querySelector('.close, button.close, [data-dismiss="modal"], .modal-header button');
				if (btn) {
					const frameRect = iframe.getBoundingClientRect();
					const rect = btn.getBoundingClientRect();
					return {
						found: true,
						inIframe: true,
						x: frameRect.left + rect.left + rect.width / 2,
						y: frameRect.top + rect.top + rect.height / 2,
						text: btn.textContent ? btn.textContent.trim() : 'X'
					};
				}
			} catch (e) { /* cross-origin */ }
		}
	}
	if (closeBtn) {
		const rect = closeBtn.getBoundingClientRect();
		return {
			found: true,
			inIframe: false,
			x: rect.left + rect.width / 2,
			y: rect.top + rect.height / 2,
			text: closeBtn.textContent ? closeBtn.textContent.trim() : 'X'
		};
	}
	const modal = document.querySelector('.modal, .popup-window, .modal-content');
	return { found: false, modalPresent: modal !== null };
})()`

const modalPresentJS = `(() => {
	const modal = document.querySelector('.modal:not(.fade), .popup-window');
	return {
		present: modal !== null && window.getComputedStyle(modal).display !== 'none'
	};
})()`

const fillPromptTemplate = `((request) => {
	const textarea = document.querySelector('textarea[placeholder*="Enter your request"]') ||
		document.querySelector('textarea');
	if (!textarea) return { success: false, reason: 'no prompt textarea found' };
	textarea.value = request;
	textarea.dispatchEvent(new Event('input', { bubbles: true }));
	textarea.dispatchEvent(new Event('change', { bubbles: true }));
	return { success: true, length: textarea.value.length };
})`

const findGenerateButtonJS = `(() => {
	const buttons = Array.from(document.querySelectorAll('button'));
	const btn = buttons.find(b => b.textContent.includes('Fuzzy Code It'));
	if (!btn) return { exists: false };
	const rect = btn.getBoundingClientRect();
	return {
		exists: true,
		enabled: !btn.disabled,
		x: rect.left + rect.width / 2,
		y: rect.top + rect.height / 2,
		text: btn.textContent.trim()
	};
})()`

const codeOutputJS = `(() => {
	const codeElements = document.querySelectorAll('pre, code, .code-output, [class*="code"]');
	let longest = '';
	codeElements.forEach(el => {
		const text = el.textContent || '';
		if (text.length > longest.length) longest = text;
	});
	return { elementCount: codeElements.length, sampleLength: longest.length };
})()`

const checkStateJS = `(() => {
	const textarea = document.querySelector('textarea');
	const button = Array.from(document.querySelectorAll('button'))
		.find(b => b.textContent.includes('Fuzzy Code It'));
	const modal = document.querySelector('.modal:not(.fade)');
	return {
		hasTextarea: textarea !== null,
		hasButton: button !== null,
		modalGone: modal === null || window.getComputedStyle(modal).display === 'none',
		url: window.location.href
	};
})()`

const clickablesJS = `(() => {
	const nodes = Array.from(document.querySelectorAll('button, a, [role="button"], [onclick], .clickable, [class*="icon"]'));
	return nodes.slice(0, 50).map(el => {
		const rect = el.getBoundingClientRect();
		return {
			text: (el.textContent || '').trim().slice(0, 80),
			aria: el.getAttribute('aria-label') || '',
			role: el.getAttribute('role') || el.tagName.toLowerCase(),
			cls: el.className && el.className.toString ? el.className.toString() : '',
			x: rect.left + rect.width / 2,
			y: rect.top + rect.height / 2,
			visible: rect.width > 0 && rect.height > 0
		};
	});
})()`

// staticScripts maps names to every script above, including the templates
// rendered with placeholder values, for the startup syntax check.
func staticScripts() map[string]string {
	return map[string]string{
		"find_login_frame":     findLoginFrameJS,
		"frame_html":           renderCall(frameHTMLTemplate, 0),
		"fill_login":           renderCall(fillLoginTemplate, 0, "user", "pass", "", ""),
		"submit_login":         renderCall(submitLoginTemplate, 0),
		"find_close_button":    findCloseButtonJS,
		"modal_present":        modalPresentJS,
		"fill_prompt":          renderCall(fillPromptTemplate, "request"),
		"find_generate_button": findGenerateButtonJS,
		"code_output":          codeOutputJS,
		"check_state":          checkStateJS,
		"clickables":           clickablesJS,
	}
}

// renderCall appends a call with JSON-encoded arguments to a function
// template, so user-supplied strings can never break out of the script.
func renderCall(template string, args ...any) string {
	out := "(" + template + ")("
	for i, arg := range args {
		if i > 0 {
			out += ", "
		}
		encoded, err := json.Marshal(arg)
		if err != nil {
			encoded = []byte("null")
		}
		out += string(encoded)
	}
	return out + ")"
}
