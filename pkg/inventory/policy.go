package inventory

// ChannelPolicy decides, per channel, whether a reservation may exceed
// available stock. A channel that allows backorders treats the
// reservation as a commitment to fulfill rather than a hard ceiling.
type ChannelPolicy struct {
	backorder map[Channel]bool
}

// DefaultChannelPolicy allows backorders on POS only. Remote channels
// get a hard availability cap so the storefront never oversells.
func DefaultChannelPolicy() ChannelPolicy {
	return ChannelPolicy{backorder: map[Channel]bool{
		ChannelPOS:         true,
		ChannelWeb:         false,
		ChannelMarketplace: false,
		ChannelOther:       false,
	}}
}

// NewChannelPolicy builds a policy from an explicit allowance table.
// Channels absent from the table default to a hard cap.
func NewChannelPolicy(backorder map[Channel]bool) ChannelPolicy {
	table := make(map[Channel]bool, len(backorder))
	for channel, allowed := range backorder {
		table[channel] = allowed
	}
	return ChannelPolicy{backorder: table}
}

// AllowsBackorder reports whether the channel may reserve past
// available stock.
func (policy ChannelPolicy) AllowsBackorder(channel Channel) bool {
	if policy.backorder == nil {
		return false
	}
	return policy.backorder[channel]
}
