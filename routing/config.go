package routing

import "github.com/neighborhoods/docker-oversip/sip"

// DefaultMaxForwards is the default Max-Forwards ceiling.
const DefaultMaxForwards = 10

// Config holds the routing feature toggles.
type Config struct {
	// MaxForwards is the Max-Forwards ceiling applied to every request.
	// Zero means [DefaultMaxForwards].
	MaxForwards int `yaml:"max_forwards"`
	// OutboundMangling enables Outbound flow token extraction from the Request-URI
	// and token embedding into the Contact of forwarded REGISTER requests.
	// Enable it when the registrar does not support Path.
	OutboundMangling bool `yaml:"outbound_mangling"`
	// UserAssertion enables P-Asserted-Identity insertion for connections that
	// already authenticated a REGISTER.
	UserAssertion bool `yaml:"user_assertion"`
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.MaxForwards < 0 || c.MaxForwards > 255 {
		return sip.NewInvalidArgumentError("max forwards %d out of range [0, 255]", c.MaxForwards) //errtrace:skip
	}
	return nil
}

func (c Config) maxForwards() int {
	if c.MaxForwards == 0 {
		return DefaultMaxForwards
	}
	return c.MaxForwards
}
