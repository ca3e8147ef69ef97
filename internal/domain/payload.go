package domain

import (
	simplejson "github.com/bitly/go-simplejson"
	"github.com/pkg/errors"
)

// RawTrade is one trade object exactly as the feed delivered it.
// Numbers are kept as json.Number.
type RawTrade map[string]interface{}

// PositionGroup is one entry of the snapshot's data list.
type PositionGroup struct {
	Trades []RawTrade
}

// Payload is a decoded position snapshot: {"data": [{"trades": [...]}, ...]}.
type Payload struct {
	Groups []PositionGroup
}

// ParsePayload decodes a raw snapshot. Any JSON document is accepted; missing
// or mistyped data/trades entries are skipped. Only undecodable input fails.
func ParsePayload(raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, nil
	}

	js, err := simplejson.NewJson(raw)
	if err != nil {
		return Payload{}, errors.Wrap(err, "decode snapshot payload")
	}

	data := js.Get("data")
	items, err := data.Array()
	if err != nil {
		return Payload{}, nil
	}

	payload := Payload{Groups: make([]PositionGroup, 0, len(items))}
	for i := range items {
		trades := data.GetIndex(i).Get("trades")
		list, err := trades.Array()
		if err != nil {
			payload.Groups = append(payload.Groups, PositionGroup{})
			continue
		}

		group := PositionGroup{Trades: make([]RawTrade, 0, len(list))}
		for j := range list {
			m, err := trades.GetIndex(j).Map()
			if err != nil {
				continue
			}
			group.Trades = append(group.Trades, RawTrade(m))
		}
		payload.Groups = append(payload.Groups, group)
	}

	return payload, nil
}

// TradeCount returns the number of raw trades across all groups.
func (p Payload) TradeCount() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Trades)
	}
	return n
}

// String returns the value stored under key when it is a string.
func (t RawTrade) String(key string) string {
	s, _ := t[key].(string)
	return s
}

// Object returns the nested object stored under key, or nil.
func (t RawTrade) Object(key string) RawTrade {
	m, _ := t[key].(map[string]interface{})
	return RawTrade(m)
}
