package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt decodes a JSON number or a numeric string. The NER service emits
// ids and offsets in both forms.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		*f = FlexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		fv, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("invalid integer %s", n)
		}
		v = int64(fv)
	}
	*f = FlexInt(v)
	return nil
}

// Payload is the NER output for one document.
type Payload struct {
	Content       string        `json:"content"`
	Entities      []RawEntity   `json:"entities"`
	ContextTokens []RawToken    `json:"contextTokens"`
	Sentences     []RawSentence `json:"sentences"`
	Relations     []RawRelation `json:"relations,omitempty"`
}

// RawEntity is one NER entity as it appears on the wire.
type RawEntity struct {
	ID         FlexInt       `json:"id"`
	TextSpan   []RawTextSpan `json:"textSpan"`
	Type       string        `json:"type"`
	Confidence float64       `json:"confidence"`
	Status     string        `json:"status"`
	Metadata   RawMetadata   `json:"metadata"`
}

type RawTextSpan struct {
	Begin FlexInt `json:"begin"`
	End   FlexInt `json:"end"`
	Text  string  `json:"text"`
}

type RawMetadata struct {
	Normalization []RawNormalization `json:"normalization"`
	LabData       *RawLabData        `json:"labData,omitempty"`
}

// RawNormalization carries concept identifiers. Each element may itself be a
// comma separated list such as "C0011847, C0017725".
type RawNormalization struct {
	CUIs []string `json:"cuis"`
	TUIs []string `json:"tuis"`
	SUIs []string `json:"suis"`
}

// RawLabData lists context-token ids attached to a laboratory entity.
type RawLabData struct {
	Method []FlexInt `json:"method"`
	System []FlexInt `json:"system"`
	Unit   []FlexInt `json:"unit"`
	Value  []FlexInt `json:"value"`
}

type RawToken struct {
	ID    FlexInt `json:"id"`
	Begin FlexInt `json:"begin"`
	End   FlexInt `json:"end"`
	Text  string  `json:"text"`
	Type  string  `json:"type"`
}

type RawSentence struct {
	ID    FlexInt `json:"id"`
	Begin FlexInt `json:"begin"`
	End   FlexInt `json:"end"`
}

type RawRelation struct {
	Head RawRelationEnd `json:"head"`
	Tail RawRelationEnd `json:"tail"`
}

type RawRelationEnd struct {
	ID   FlexInt `json:"id"`
	Type string  `json:"type"`
}

// DecodePayload reads a NER payload, accepting both the bare document and the
// {"result": {...}} envelope returned by the NER service.
func DecodePayload(data []byte) (*Payload, error) {
	var envelope struct {
		Result *Payload `json:"result"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Result != nil {
		return envelope.Result, nil
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return &p, nil
}

// ApplyRelations rebuilds every entity's labData lists from the relations whose
// head is that entity. The tail type prefix (before the first underscore)
// selects the list: VALUE, METHOD, SYSTEM or UNIT. Payloads without relations
// are left untouched.
func (p *Payload) ApplyRelations() {
	if len(p.Relations) == 0 {
		return
	}
	for i := range p.Entities {
		ent := &p.Entities[i]
		lab := &RawLabData{
			Method: []FlexInt{},
			System: []FlexInt{},
			Unit:   []FlexInt{},
			Value:  []FlexInt{},
		}
		for _, rel := range p.Relations {
			if rel.Head.ID != ent.ID {
				continue
			}
			kind, _, _ := strings.Cut(rel.Tail.Type, "_")
			switch strings.ToUpper(kind) {
			case "VALUE":
				lab.Value = append(lab.Value, rel.Tail.ID)
			case "METHOD":
				lab.Method = append(lab.Method, rel.Tail.ID)
			case "SYSTEM":
				lab.System = append(lab.System, rel.Tail.ID)
			case "UNIT":
				lab.Unit = append(lab.Unit, rel.Tail.ID)
			}
		}
		ent.Metadata.LabData = lab
	}
}
