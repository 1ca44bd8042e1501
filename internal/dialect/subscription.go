package dialect

import (
	"fmt"
	"sort"
)

// SubscriptionConfig is the sum type resolving spec §3's dual form: either a
// channel list crossed with a symbol list, or an explicit channel -> symbols
// map. The map form wins when non-empty; mixing both within one feed
// instance is a fatal-config error (spec §9 Design Notes).
type SubscriptionConfig struct {
	// Channels and Pairs together form the Cartesian-product shape.
	Channels []string
	Pairs    []string

	// ChannelMap is the explicit-map shape; non-empty wins over Channels/Pairs.
	ChannelMap map[string][]string
}

// Resolve validates the config and expands it into a flat pair list. native
// maps a canonical symbol to its exchange-native form.
func (c SubscriptionConfig) Resolve(native func(symbol string) (string, bool)) ([]ChannelSymbol, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	var out []ChannelSymbol
	if len(c.ChannelMap) > 0 {
		channels := make([]string, 0, len(c.ChannelMap))
		for ch := range c.ChannelMap {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		for _, ch := range channels {
			for _, sym := range c.ChannelMap[ch] {
				nativeSym, ok := native(sym)
				if !ok {
					return nil, fmt.Errorf("subscription config: unknown symbol %q for channel %q", sym, ch)
				}
				out = append(out, ChannelSymbol{Channel: ch, Symbol: sym, NativeSym: nativeSym})
			}
		}
		return out, nil
	}

	for _, ch := range c.Channels {
		for _, sym := range c.Pairs {
			nativeSym, ok := native(sym)
			if !ok {
				return nil, fmt.Errorf("subscription config: unknown symbol %q for channel %q", sym, ch)
			}
			out = append(out, ChannelSymbol{Channel: ch, Symbol: sym, NativeSym: nativeSym})
		}
	}
	return out, nil
}

// validate enforces that the two shapes are not mixed within one instance
// (spec §3: "Mixing is not permitted within one feed instance").
func (c SubscriptionConfig) validate() error {
	cartesian := len(c.Channels) > 0 || len(c.Pairs) > 0
	explicit := len(c.ChannelMap) > 0
	if cartesian && explicit {
		return fmt.Errorf("subscription config: cannot mix channel+pair list with an explicit channel map")
	}
	if !cartesian && !explicit {
		return fmt.Errorf("subscription config: no channels/symbols configured")
	}
	return nil
}

// ChannelNames returns the channel names this config subscribes to,
// used by dialects to decide RequiresAuth/NeedsSnapshot up front.
func (c SubscriptionConfig) ChannelNames() []string {
	if len(c.ChannelMap) > 0 {
		out := make([]string, 0, len(c.ChannelMap))
		for ch := range c.ChannelMap {
			out = append(out, ch)
		}
		sort.Strings(out)
		return out
	}
	out := append([]string(nil), c.Channels...)
	sort.Strings(out)
	return out
}
