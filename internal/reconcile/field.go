package reconcile

import (
	"slices"

	"github.com/samber/lo"

	"battlecalc/internal/battle"
	"battlecalc/internal/dex"
	"battlecalc/internal/host"
)

// reconcileField merges battle-wide conditions. Weather and terrain keep a
// user override until the host reveals a different, non-empty value.
func reconcileField(f *battle.Field, b *host.Battle) {
	if b.GameType != "" {
		f.GameType = b.GameType
	}
	f.Weather.Reveal(b.Weather)
	f.Terrain.Reveal(b.Terrain)

	pseudo := lo.Map(b.PseudoWeather, func(w string, _ int) string { return dex.ID(w) })
	if slices.Equal(pseudo, f.PseudoWeather) {
		return
	}
	f.PseudoWeather = pseudo
	f.WonderRoom = slices.Contains(pseudo, "wonderroom")
	f.MagicRoom = slices.Contains(pseudo, "magicroom")
	f.TrickRoom = slices.Contains(pseudo, "trickroom")
	f.Gravity = slices.Contains(pseudo, "gravity")
}

// parseConditions maps host side condition ids (with layer counts) onto
// SideConditions.
func parseConditions(raw map[string]int) battle.SideConditions {
	var c battle.SideConditions
	for name, layers := range raw {
		if layers <= 0 {
			layers = 1
		}
		switch dex.ID(name) {
		case "reflect":
			c.Reflect = true
		case "lightscreen":
			c.LightScreen = true
		case "auroraveil":
			c.AuroraVeil = true
		case "tailwind":
			c.Tailwind = true
		case "grasspledge":
			c.Swamp = true
		case "waterpledge":
			c.Rainbow = true
		case "stealthrock":
			c.StealthRock = true
		case "stickyweb":
			c.StickyWeb = true
		case "spikes":
			c.Spikes = layers
		case "toxicspikes":
			c.ToxicSpikes = layers
		case "safeguard":
			c.Safeguard = true
		case "mist":
			c.Mist = true
		}
	}
	return c
}
