// Package server is the relay's Connection Handler: it upgrades HTTP
// connections to WebSocket, parses the client-to-relay commands, and
// drives each connection's cooperative multi-source event loop (incoming
// frames, broadcast events, historical query results, pings, shutdown).
package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"brokerly.dev/event"
	"brokerly.dev/filter"
)

// clientMessage is the decoded shape of an inbound ["EVENT"|"REQ"|"CLOSE", ...]
// array. Only one of Event/Filters is populated, selected by Kind.
type clientMessage struct {
	Kind    string
	SubID   string
	Event   *event.E
	Filters []*filter.F
}

const (
	msgEvent = "EVENT"
	msgReq   = "REQ"
	msgClose = "CLOSE"
)

var errUnrecognizedCommand = errors.New("unrecognized command")

// parseClientMessage decodes one client-to-relay frame. It recognizes
// the following wire shapes:
//
//	["EVENT", <event JSON>]
//	["REQ", <subscription id>, <filter JSON>...]
//	["CLOSE", <subscription id>]
func parseClientMessage(raw []byte) (clientMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return clientMessage{}, err
	}
	if len(parts) == 0 {
		return clientMessage{}, errUnrecognizedCommand
	}
	var kind string
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return clientMessage{}, err
	}
	switch kind {
	case msgEvent:
		if len(parts) < 2 {
			return clientMessage{}, fmt.Errorf("EVENT: missing event payload")
		}
		e := &event.E{}
		if err := json.Unmarshal(parts[1], e); err != nil {
			return clientMessage{}, fmt.Errorf("EVENT: %w", err)
		}
		return clientMessage{Kind: msgEvent, Event: e}, nil
	case msgReq:
		if len(parts) < 2 {
			return clientMessage{}, fmt.Errorf("REQ: missing subscription id")
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return clientMessage{}, fmt.Errorf("REQ: %w", err)
		}
		filters := make([]*filter.F, 0, len(parts)-2)
		for _, raw := range parts[2:] {
			f := &filter.F{}
			if err := json.Unmarshal(raw, f); err != nil {
				return clientMessage{}, fmt.Errorf("REQ: %w", err)
			}
			filters = append(filters, f)
		}
		if len(filters) == 0 {
			filters = append(filters, &filter.F{})
		}
		return clientMessage{Kind: msgReq, SubID: subID, Filters: filters}, nil
	case msgClose:
		if len(parts) < 2 {
			return clientMessage{}, fmt.Errorf("CLOSE: missing subscription id")
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return clientMessage{}, fmt.Errorf("CLOSE: %w", err)
		}
		return clientMessage{Kind: msgClose, SubID: subID}, nil
	default:
		return clientMessage{}, fmt.Errorf("%w: %s", errUnrecognizedCommand, kind)
	}
}

func eventMessage(subID string, e *event.E) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal([3]json.RawMessage{
		mustMarshal(msgEvent), mustMarshal(subID), payload,
	})
}

func eoseMessage(subID string) ([]byte, error) {
	return json.Marshal([2]json.RawMessage{mustMarshal("EOSE"), mustMarshal(subID)})
}

func noticeMessage(text string) ([]byte, error) {
	return json.Marshal([2]json.RawMessage{mustMarshal("NOTICE"), mustMarshal(text)})
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
