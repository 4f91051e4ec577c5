package core

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// EmptyPrompt is shown when no domain exists yet.
const EmptyPrompt = "No domain found here... Create one now!"

// Offer is an action the local account can take on a domain.
type Offer string

const (
	OfferSetPrice  Offer = "Set Price"
	OfferSetWallet Offer = "Set Wallet"
	OfferTransfer  Offer = "Transfer"
	OfferBuy       Offer = "Buy Domain"
)

// Offers lists what viewer may do with v: owners manage the domain, everyone else may
// only buy it, and only while it is for sale.
func Offers(v View, viewer AccountID) []Offer {
	if !viewer.IsZero() && v.Owner == viewer {
		return []Offer{OfferSetPrice, OfferSetWallet, OfferTransfer}
	}
	if v.Price != nil {
		return []Offer{OfferBuy}
	}
	return nil
}

// Mine keeps the domains owned by account.
func Mine(views []View, account AccountID) []View {
	out := make([]View, 0, len(views))
	if account.IsZero() {
		return out
	}
	for _, v := range views {
		if v.Owner == account {
			out = append(out, v)
		}
	}
	return out
}

// ForSale keeps the domains with an asking price.
func ForSale(views []View) []View {
	out := make([]View, 0, len(views))
	for _, v := range views {
		if v.Price != nil {
			out = append(out, v)
		}
	}
	return out
}

// Match keeps the domains whose name matches a doublestar pattern, e.g. "*.dot" or "shop*".
func Match(views []View, pattern string) ([]View, error) {
	if pattern == "" {
		return views, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid name pattern %q", pattern)
	}
	out := make([]View, 0, len(views))
	for _, v := range views {
		ok, err := doublestar.Match(pattern, v.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Tab selects one of the presentation groupings.
type Tab string

const (
	TabAll  Tab = "ALL"
	TabMine Tab = "MY DOMAIN"
	TabSale Tab = "DOMAIN SALE"
)

// Select applies tab to views for the session's account.
func Select(views []View, tab Tab, session Session) []View {
	switch tab {
	case TabMine:
		return Mine(views, session.Account)
	case TabSale:
		return ForSale(views)
	default:
		return views
	}
}
