package humanoid

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"github.com/chromedp/chromedp/kb"
)

// keyboardNeighbors maps each key to its physical neighbors on a QWERTY
// layout, used to pick plausible typo characters.
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// commonNgrams are letter pairs typed faster than average by practiced hands.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
}

// Type simulates realistic human typing into the element matched by the
// selector. The element is clicked first to focus it.
func (h *Humanoid) Type(ctx context.Context, selector string, text string) error {
	if err := h.Click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to click/focus selector %q: %w", selector, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.updateFatigue(float64(len(text)) * 0.05)

	// Planning pause after focusing.
	if err := h.cognitivePause(ctx, 200, 80); err != nil {
		return err
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if err := h.keyPause(ctx, runes, i); err != nil {
			return err
		}

		if h.rng.Float64() < h.dynamicConfig.TypoRate {
			if err := h.introduceTypo(ctx, runes[i]); err != nil {
				return fmt.Errorf("humanoid: error during typo simulation: %w", err)
			}
		}

		if err := h.executor.SendKeys(ctx, string(runes[i])); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", runes[i], err)
		}
	}
	return nil
}

// keyPause sleeps the inter-key interval, shortened for common digraphs.
// Assumes the caller holds the lock.
func (h *Humanoid) keyPause(ctx context.Context, runes []rune, idx int) error {
	// Base inter-key delay around 120ms with jitter.
	delayMs := 120.0 + h.rng.NormFloat64()*35.0

	if idx > 0 {
		pair := string(unicode.ToLower(runes[idx-1])) + string(unicode.ToLower(runes[idx]))
		if commonNgrams[pair] {
			delayMs *= 0.6
		}
	}

	// Fatigue slows typing down.
	delayMs *= 1.0 + h.fatigueLevel*0.5
	if delayMs < 25 {
		delayMs = 25
	}
	return h.executor.Sleep(ctx, time.Duration(delayMs)*time.Millisecond)
}

// introduceTypo types a neighboring key, notices, and corrects it with
// backspace. Assumes the caller holds the lock.
func (h *Humanoid) introduceTypo(ctx context.Context, intended rune) error {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(intended)]
	if !ok || len(neighbors) == 0 {
		return nil
	}
	wrong := rune(neighbors[h.rng.Intn(len(neighbors))])
	if unicode.IsUpper(intended) {
		wrong = unicode.ToUpper(wrong)
	}

	if err := h.executor.SendKeys(ctx, string(wrong)); err != nil {
		return err
	}

	// Noticing the mistake takes a beat.
	if err := h.cognitivePause(ctx, 250, 90); err != nil {
		return err
	}
	if err := h.executor.PressKey(ctx, kb.Backspace); err != nil {
		return err
	}
	return h.cognitivePause(ctx, 120, 40)
}
