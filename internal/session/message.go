package session

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/khainl1110/speedtrivia/internal/errors"
)

// Message is one decoded inbound chat payload. The wire format is loose
// (string, number, or object), so it is decoded exactly once at the
// boundary into a tagged variant and dispatched by type from then on.
type Message interface {
	isMessage()
}

// NameSet carries a bare player name.
type NameSet struct {
	Name string
}

// TopicSelect carries a topic choice without a name.
type TopicSelect struct {
	Topic string
}

// ScoreDelta carries a client-reported score increment. The value is
// trusted as-is; recomputing scores server-side is an explicit non-goal.
type ScoreDelta struct {
	Delta int
}

// Combined carries a name and topic in one payload, the way the start-game
// screen submits them.
type Combined struct {
	Name  string
	Topic string
}

func (NameSet) isMessage()     {}
func (TopicSelect) isMessage() {}
func (ScoreDelta) isMessage()  {}
func (Combined) isMessage()    {}

// DecodeMessage turns a raw chat payload into a Message variant.
//
// A JSON number, or a JSON string holding only an optionally-signed
// integer, is a score delta (legacy clients report scores as digit
// strings). Any other string is a name. Objects carry name and/or topic.
func DecodeMessage(raw []byte) (Message, error) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("empty chat payload"))
	}

	switch t[0] {
	case '"':
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return nil, errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
		}

		if d, err := strconv.Atoi(s); err == nil {
			return ScoreDelta{Delta: d}, nil
		}

		return NameSet{Name: s}, nil

	case '{':
		var p struct {
			Name  *string `json:"name"`
			Topic *string `json:"topic"`
		}
		if err := json.Unmarshal(t, &p); err != nil {
			return nil, errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
		}

		switch {
		case p.Name != nil && p.Topic != nil:
			return Combined{Name: *p.Name, Topic: *p.Topic}, nil
		case p.Topic != nil:
			return TopicSelect{Topic: *p.Topic}, nil
		case p.Name != nil:
			return NameSet{Name: *p.Name}, nil
		default:
			return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("chat payload object has neither name nor topic"))
		}

	default:
		var n json.Number
		if err := json.Unmarshal(t, &n); err != nil {
			return nil, errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
		}

		d, err := n.Int64()
		if err != nil {
			return nil, errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
		}

		return ScoreDelta{Delta: int(d)}, nil
	}
}
