// Package classifier assigns a category and a lifecycle stage to source records
package classifier

import (
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/normalizers"
	"github.com/zkinzler/dfw-openings/pkg/rules"
)

// Decision explains how a category was chosen
type Decision struct {
	Category models.Category `json:"category"`
	Reason   string          `json:"reason"`
	Keyword  string          `json:"keyword,omitempty"`
}

const (
	ReasonBarKeyword        = "bar_keyword"
	ReasonRestaurantKeyword = "restaurant_keyword"
	ReasonExcludedKeyword   = "excluded_keyword"
	ReasonPayloadSignal     = "payload_signal"
	ReasonNAICS             = "naics"
	ReasonSourceDefault     = "source_default"
	ReasonNoSignal          = "no_signal"
)

type compiledSignal struct {
	expression string
	path       *jmespath.JMESPath
}

type compiledNAICS struct {
	rule rules.NAICSRule
	path *jmespath.JMESPath
}

type stageKey struct {
	source    string
	eventType models.EventType
}

// Classifier is immutable after construction and safe for concurrent use
type Classifier struct {
	version        string
	bar            keywordSet
	restaurant     keywordSet
	excluded       keywordSet
	defaultSources map[models.SourceSystem]bool
	signals        map[models.SourceSystem][]compiledSignal
	naics          map[models.SourceSystem][]compiledNAICS
	stages         map[stageKey]models.Stage
}

// New compiles rules into a classifier
func New(r *rules.Rules) (*Classifier, error) {
	c := &Classifier{
		version:        r.Version,
		bar:            newKeywordSet(r.BarKeywords),
		restaurant:     newKeywordSet(r.RestaurantKeywords),
		excluded:       newKeywordSet(r.ExcludedKeywords),
		defaultSources: make(map[models.SourceSystem]bool),
		signals:        make(map[models.SourceSystem][]compiledSignal),
		naics:          make(map[models.SourceSystem][]compiledNAICS),
		stages:         make(map[stageKey]models.Stage),
	}

	for _, src := range r.RestaurantDefaultSources {
		c.defaultSources[src] = true
	}

	for _, sig := range r.PayloadSignals {
		path, err := jmespath.Compile(sig.Expression)
		if err != nil {
			return nil, fmt.Errorf("invalid payload signal expression %q: %w", sig.Expression, err)
		}
		c.signals[sig.Source] = append(c.signals[sig.Source], compiledSignal{expression: sig.Expression, path: path})
	}

	for _, rule := range r.NAICS {
		path, err := jmespath.Compile(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("invalid naics expression %q: %w", rule.Expression, err)
		}
		c.naics[rule.Source] = append(c.naics[rule.Source], compiledNAICS{rule: rule, path: path})
	}

	for _, row := range r.StageTable {
		c.stages[stageKey{source: row.Source, eventType: row.EventType}] = row.Stage
	}

	return c, nil
}

// Version returns the rules version the classifier was built from
func (c *Classifier) Version() string {
	return c.version
}

// Category classifies a business from its name and the feed it came from
func (c *Classifier) Category(rawName string, source models.SourceSystem) models.Category {
	return c.decide(rawName, source, nil).Category
}

// CategoryForRecord classifies a record, consulting payload signals when the name is inconclusive
func (c *Classifier) CategoryForRecord(rec models.SourceRecord) models.Category {
	return c.Explain(rec).Category
}

// Explain classifies a record and reports which rule decided it
func (c *Classifier) Explain(rec models.SourceRecord) Decision {
	return c.decide(rec.RawName, rec.Source, rec.Payload)
}

func (c *Classifier) decide(rawName string, source models.SourceSystem, payload json.RawMessage) Decision {
	tokens := normalizers.Tokenize(rawName)

	if kw, ok := c.bar.Match(tokens); ok {
		return Decision{Category: models.CategoryBar, Reason: ReasonBarKeyword, Keyword: kw}
	}
	if kw, ok := c.restaurant.Match(tokens); ok {
		return Decision{Category: models.CategoryRestaurant, Reason: ReasonRestaurantKeyword, Keyword: kw}
	}
	if kw, ok := c.excluded.Match(tokens); ok {
		return Decision{Category: models.CategoryExcluded, Reason: ReasonExcludedKeyword, Keyword: kw}
	}

	if doc := decodePayload(payload); doc != nil {
		if d, ok := c.fromSignals(source, doc); ok {
			return d
		}
		if d, ok := c.fromNAICS(source, doc); ok {
			return d
		}
	}

	if c.defaultSources[source] {
		return Decision{Category: models.CategoryRestaurant, Reason: ReasonSourceDefault}
	}
	return Decision{Category: models.CategoryUnknown, Reason: ReasonNoSignal}
}

func (c *Classifier) fromSignals(source models.SourceSystem, doc any) (Decision, bool) {
	for _, sig := range c.signals[source] {
		tokens := normalizers.Tokenize(searchString(sig.path, doc))
		if len(tokens) == 0 {
			continue
		}
		if kw, ok := c.bar.Match(tokens); ok {
			return Decision{Category: models.CategoryBar, Reason: ReasonPayloadSignal, Keyword: kw}, true
		}
		if kw, ok := c.restaurant.Match(tokens); ok {
			return Decision{Category: models.CategoryRestaurant, Reason: ReasonPayloadSignal, Keyword: kw}, true
		}
	}
	return Decision{}, false
}

func (c *Classifier) fromNAICS(source models.SourceSystem, doc any) (Decision, bool) {
	for _, n := range c.naics[source] {
		code := searchString(n.path, doc)
		if code != "" && n.rule.Matches(code) {
			return Decision{Category: n.rule.Category, Reason: ReasonNAICS, Keyword: code}, true
		}
	}
	return Decision{}, false
}

// Stage maps a (source, event type) pair to a lifecycle stage. Source-specific rows win
// over wildcard rows and pairs absent from the table map to unknown, so the mapping is total.
func (c *Classifier) Stage(source models.SourceSystem, eventType models.EventType) models.Stage {
	if st, ok := c.stages[stageKey{source: string(source), eventType: eventType}]; ok {
		return st
	}
	if st, ok := c.stages[stageKey{source: rules.AnySource, eventType: eventType}]; ok {
		return st
	}
	return models.StageUnknown
}

func decodePayload(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil
	}
	return doc
}

// searchString evaluates an expression and flattens the result to text
func searchString(path *jmespath.JMESPath, doc any) string {
	result, err := path.Search(doc)
	if err != nil || result == nil {
		return ""
	}
	switch v := result.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case []any:
		var out string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out += " " + s
			}
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}
