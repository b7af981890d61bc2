package annotation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedDocument is returned when a NER payload violates the expected
// shape. The whole document is rejected.
var ErrMalformedDocument = errors.New("malformed document")

// Entity types the coder acts on.
const (
	TypeLaboratoryData      = "LABORATORY_DATA"
	TypeAnatomicalStructure = "ANATOMICAL_STRUCTURE"
)

// TokenKind tags a context token.
type TokenKind int

const (
	OtherToken TokenKind = iota
	ModalityToken
	ViewToken
	PharmaceuticalToken
	RadiologyRouteToken
	UnitToken
)

var tokenKindNames = map[string]TokenKind{
	"ModalityToken":       ModalityToken,
	"ViewToken":           ViewToken,
	"PharmaceuticalToken": PharmaceuticalToken,
	"RadiologyrouteToken": RadiologyRouteToken,
	"UnitToken":           UnitToken,
}

// ParseTokenKind maps the NER token type name to a TokenKind.
func ParseTokenKind(name string) TokenKind {
	if k, ok := tokenKindNames[strings.TrimSpace(name)]; ok {
		return k
	}
	return OtherToken
}

func (k TokenKind) String() string {
	switch k {
	case ModalityToken:
		return "ModalityToken"
	case ViewToken:
		return "ViewToken"
	case PharmaceuticalToken:
		return "PharmaceuticalToken"
	case RadiologyRouteToken:
		return "RadiologyrouteToken"
	case UnitToken:
		return "UnitToken"
	default:
		return "OtherToken"
	}
}

// Token is one context token of the document.
type Token struct {
	ID   int
	Span Span
	Text string
	Kind TokenKind
}

// TokenTable resolves attribute token ids.
type TokenTable struct {
	byID    map[int]Token
	ordered []Token
}

// NewTokenTable indexes tokens by id. A later token with a duplicate id
// replaces the earlier one in lookups.
func NewTokenTable(tokens []Token) *TokenTable {
	t := &TokenTable{byID: make(map[int]Token, len(tokens)), ordered: tokens}
	for _, tok := range tokens {
		t.byID[tok.ID] = tok
	}
	return t
}

// Get returns the token with the given id.
func (t *TokenTable) Get(id int) (Token, bool) {
	if t == nil {
		return Token{}, false
	}
	tok, ok := t.byID[id]
	return tok, ok
}

// Resolve returns the tokens for ids, skipping unknown ids.
func (t *TokenTable) Resolve(ids []int) []Token {
	out := make([]Token, 0, len(ids))
	for _, id := range ids {
		if tok, ok := t.Get(id); ok {
			out = append(out, tok)
		}
	}
	return out
}

// Len returns the number of tokens.
func (t *TokenTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ordered)
}

// EntityMention is a NER mention. An entity may be expressed by several
// non-contiguous pieces; Begins, Ends and Texts are positionally aligned.
type EntityMention struct {
	ID     int
	Begins []int
	Ends   []int
	Texts  []string
	CUIs   []int
	TUIs   []int
	SUIs   []int
	Types  []string
}

// Spans returns the mention's pieces.
func (m *EntityMention) Spans() []Span {
	out := make([]Span, len(m.Begins))
	for i := range m.Begins {
		out[i] = Span{Begin: m.Begins[i], End: m.Ends[i]}
	}
	return out
}

// Extent spans from the first piece's begin to the last piece's end.
func (m *EntityMention) Extent() Span {
	return Span{Begin: m.Begins[0], End: m.Ends[len(m.Ends)-1]}
}

// Text joins the surface texts with a space.
func (m *EntityMention) Text() string {
	return strings.Join(m.Texts, " ")
}

// HasType reports whether t is one of the mention's types.
func (m *EntityMention) HasType(t string) bool {
	for _, typ := range m.Types {
		if typ == t {
			return true
		}
	}
	return false
}

// Evidence returns one TextSpan per piece.
func (m *EntityMention) Evidence() []TextSpan {
	out := make([]TextSpan, len(m.Begins))
	for i := range m.Begins {
		out[i] = TextSpan{Text: m.Texts[i], BeginOffset: m.Begins[i]}
	}
	return out
}

// StructuredMention is the span-keyed view of an entity carrying attribute
// token references.
type StructuredMention struct {
	ID         int
	Span       Span
	EntityType string
	CUIs       []int
	TUIs       []int
	SUIs       []int
	Confidence float64
	Status     string

	MethodIDs         []int
	SystemIDs         []int
	ValueIDs          []int
	UnitIDs           []int
	ModalityIDs       []int
	ViewIDs           []int
	PharmaceuticalIDs []int
	RadiologyRouteIDs []int
}

// Sentence is a sentence of the document. CoveredText is the content between
// Begin and End.
type Sentence struct {
	Span
	Ordinal     int
	CoveredText string
}

// SentenceMentions pairs a sentence with the entity mentions inside it, in
// document order.
type SentenceMentions struct {
	Sentence Sentence
	Mentions []*EntityMention
}

// Document is the validated, typed form of a NER payload. Entities and
// Structured are aligned by index.
type Document struct {
	Content    string
	Entities   []*EntityMention
	Structured []*StructuredMention
	Sentences  []SentenceMentions
	Tokens     *TokenTable
	Mentions   *MentionIndex
}

// Parse converts a payload into a Document. Offsets are rune offsets into
// Content. Any structural violation rejects the document with an error
// wrapping ErrMalformedDocument.
func Parse(p *Payload) (*Document, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedDocument)
	}
	content := []rune(p.Content)

	tokens := make([]Token, 0, len(p.ContextTokens))
	for i, raw := range p.ContextTokens {
		span := Span{Begin: int(raw.Begin), End: int(raw.End)}
		if !span.Valid() {
			return nil, fmt.Errorf("%w: context token %d has begin %d after end %d", ErrMalformedDocument, i, span.Begin, span.End)
		}
		tokens = append(tokens, Token{
			ID:   int(raw.ID),
			Span: span,
			Text: raw.Text,
			Kind: ParseTokenKind(raw.Type),
		})
	}
	table := NewTokenTable(tokens)

	doc := &Document{
		Content:    p.Content,
		Entities:   make([]*EntityMention, 0, len(p.Entities)),
		Structured: make([]*StructuredMention, 0, len(p.Entities)),
		Tokens:     table,
	}

	for i := range p.Entities {
		em, sm, err := parseEntity(&p.Entities[i], tokens)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		doc.Entities = append(doc.Entities, em)
		doc.Structured = append(doc.Structured, sm)
	}
	doc.Mentions = NewMentionIndex(doc.Structured)

	for i, raw := range p.Sentences {
		span := Span{Begin: int(raw.Begin), End: int(raw.End)}
		if !span.Valid() {
			return nil, fmt.Errorf("%w: sentence %d has begin %d after end %d", ErrMalformedDocument, i, span.Begin, span.End)
		}
		sent := Sentence{Span: span, Ordinal: int(raw.ID), CoveredText: slice(content, span)}
		group := SentenceMentions{Sentence: sent}
		for _, em := range doc.Entities {
			ext := em.Extent()
			if sent.Begin <= ext.Begin && ext.End <= sent.End {
				group.Mentions = append(group.Mentions, em)
			}
		}
		doc.Sentences = append(doc.Sentences, group)
	}

	return doc, nil
}

func parseEntity(raw *RawEntity, tokens []Token) (*EntityMention, *StructuredMention, error) {
	if len(raw.TextSpan) == 0 {
		return nil, nil, fmt.Errorf("%w: missing field textSpan", ErrMalformedDocument)
	}
	if strings.TrimSpace(raw.Type) == "" {
		return nil, nil, fmt.Errorf("%w: missing field type", ErrMalformedDocument)
	}

	em := &EntityMention{
		ID:     int(raw.ID),
		Begins: make([]int, 0, len(raw.TextSpan)),
		Ends:   make([]int, 0, len(raw.TextSpan)),
		Texts:  make([]string, 0, len(raw.TextSpan)),
		Types:  []string{raw.Type},
	}
	for _, ts := range raw.TextSpan {
		span := Span{Begin: int(ts.Begin), End: int(ts.End)}
		if !span.Valid() {
			return nil, nil, fmt.Errorf("%w: textSpan begin %d after end %d", ErrMalformedDocument, span.Begin, span.End)
		}
		if n := len(em.Begins); n > 0 && (span.Begin < em.Begins[n-1] || span.End < em.Ends[n-1]) {
			return nil, nil, fmt.Errorf("%w: textSpan pieces out of order at begin %d", ErrMalformedDocument, span.Begin)
		}
		em.Begins = append(em.Begins, span.Begin)
		em.Ends = append(em.Ends, span.End)
		em.Texts = append(em.Texts, ts.Text)
	}

	var err error
	for _, norm := range raw.Metadata.Normalization {
		if em.CUIs, err = appendIdentifiers(em.CUIs, norm.CUIs, 'C'); err != nil {
			return nil, nil, err
		}
		if em.TUIs, err = appendIdentifiers(em.TUIs, norm.TUIs, 'T'); err != nil {
			return nil, nil, err
		}
		if em.SUIs, err = appendIdentifiers(em.SUIs, norm.SUIs, 'S'); err != nil {
			return nil, nil, err
		}
	}

	sm := &StructuredMention{
		ID:         em.ID,
		Span:       em.Extent(),
		EntityType: raw.Type,
		CUIs:       em.CUIs,
		TUIs:       em.TUIs,
		SUIs:       em.SUIs,
		Confidence: raw.Confidence,
		Status:     raw.Status,
	}
	if lab := raw.Metadata.LabData; lab != nil {
		sm.MethodIDs = ints(lab.Method)
		sm.SystemIDs = ints(lab.System)
		sm.ValueIDs = ints(lab.Value)
		sm.UnitIDs = ints(lab.Unit)
	}

	for _, tok := range tokens {
		if !tok.Span.Covers(sm.Span) && !sm.Span.Covers(tok.Span) {
			continue
		}
		switch tok.Kind {
		case ModalityToken:
			sm.ModalityIDs = append(sm.ModalityIDs, tok.ID)
		case ViewToken:
			sm.ViewIDs = append(sm.ViewIDs, tok.ID)
		case PharmaceuticalToken:
			sm.PharmaceuticalIDs = append(sm.PharmaceuticalIDs, tok.ID)
		case RadiologyRouteToken:
			sm.RadiologyRouteIDs = append(sm.RadiologyRouteIDs, tok.ID)
		case UnitToken:
			if !containsInt(sm.UnitIDs, tok.ID) {
				sm.UnitIDs = append(sm.UnitIDs, tok.ID)
			}
		}
	}

	return em, sm, nil
}

// appendIdentifiers parses identifiers such as "C0011847" or
// "C0011847, C0017725" and appends their numeric parts.
func appendIdentifiers(dst []int, values []string, prefix byte) ([]int, error) {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			id, ok, err := ParseIdentifier(part, prefix)
			if err != nil {
				return dst, err
			}
			if ok {
				dst = append(dst, id)
			}
		}
	}
	return dst, nil
}

// ParseIdentifier parses "C0011847" into 11847. Blank input yields ok=false.
func ParseIdentifier(s string, prefix byte) (int, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if s[0] == prefix || s[0] == prefix+('a'-'A') {
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: invalid %c identifier %q", ErrMalformedDocument, prefix, s)
	}
	return n, true, nil
}

func ints(in []FlexInt) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func slice(content []rune, s Span) string {
	begin, end := s.Begin, s.End
	if begin > len(content) {
		begin = len(content)
	}
	if end > len(content) {
		end = len(content)
	}
	return string(content[begin:end])
}
