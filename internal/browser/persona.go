package browser

import (
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

// personaOrDefault falls back to the stock persona when none is set. A
// persona without a user agent is treated as unset.
func personaOrDefault(p schemas.Persona) schemas.Persona {
	if p.UserAgent == "" {
		return schemas.DefaultPersona
	}
	return p
}

// personaActions returns the per-target overrides that present the persona
// to the page. Emulation overrides are scoped to a target, so every new tab
// runs them again.
func personaActions(p schemas.Persona) []chromedp.Action {
	return []chromedp.Action{
		emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform),
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
	}
}
