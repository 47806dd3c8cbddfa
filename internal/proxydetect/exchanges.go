package proxydetect

import "strings"

// DefaultExchangeAddresses are known centralized-exchange hot wallets.
// Transfers to these (directly or one hop removed) disqualify a candidate
// from being a proxy wallet.
var DefaultExchangeAddresses = []string{
	"0x28c6c06298d514db089934071355e5743bf21d60",
	"0x21a31ee1afc51d94c2efccaa2092ad1028285549",
	"0xdfd5293d8e347dfe59e90efd55b2956a1343963d",
	"0x564286362092d8e7936f0549571a803b203aaced",
	"0x0681d8db095565fe8a346fa0277bffde9c0edbbf",
}

// ExchangeSet is a case-insensitive set of exchange addresses.
type ExchangeSet struct {
	addrs map[string]struct{}
}

// NewExchangeSet builds the set from the default list plus any extras
// from configuration.
func NewExchangeSet(extra ...string) *ExchangeSet {
	s := &ExchangeSet{addrs: make(map[string]struct{}, len(DefaultExchangeAddresses)+len(extra))}
	for _, a := range DefaultExchangeAddresses {
		s.add(a)
	}
	for _, a := range extra {
		s.add(a)
	}
	return s
}

func (s *ExchangeSet) add(addr string) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return
	}
	s.addrs[addr] = struct{}{}
}

// Contains reports whether addr is a known exchange wallet.
func (s *ExchangeSet) Contains(addr string) bool {
	_, ok := s.addrs[strings.ToLower(addr)]
	return ok
}

// Len returns the number of known exchange addresses.
func (s *ExchangeSet) Len() int {
	return len(s.addrs)
}
