// Package rules holds the versioned keyword lists and scoring constants that drive
// classification and prioritization. Operators retune these without touching code.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/normalizers"
)

// AnySource matches every source in a stage table row
const AnySource = "*"

//go:embed default_rules.yaml
var defaultRules []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Rules is the complete classification and scoring configuration
type Rules struct {
	Version                  string                `yaml:"version" json:"version" validate:"required"`
	BarKeywords              []string              `yaml:"bar_keywords" json:"bar_keywords" validate:"required,min=1,dive,required"`
	RestaurantKeywords       []string              `yaml:"restaurant_keywords" json:"restaurant_keywords" validate:"dive,required"`
	ExcludedKeywords         []string              `yaml:"excluded_keywords" json:"excluded_keywords" validate:"dive,required"`
	RestaurantDefaultSources []models.SourceSystem `yaml:"restaurant_default_sources" json:"restaurant_default_sources"`
	PayloadSignals           []PayloadSignal       `yaml:"payload_signals" json:"payload_signals" validate:"dive"`
	NAICS                    []NAICSRule           `yaml:"naics" json:"naics" validate:"dive"`
	StageTable               []StageRule           `yaml:"stage_table" json:"stage_table" validate:"required,min=1,dive"`
	StagePriorityOrder       []models.Stage        `yaml:"stage_priority_order" json:"stage_priority_order" validate:"required,min=1"`
	StageBonusStep           int                   `yaml:"stage_bonus_step" json:"stage_bonus_step" validate:"gte=0"`
	RecencyThresholds        []RecencyThreshold    `yaml:"recency_thresholds" json:"recency_thresholds" validate:"dive"`
	ContactBonus             ContactBonus          `yaml:"contact_bonus" json:"contact_bonus"`
	CategoryBonus            CategoryBonus         `yaml:"category_bonus" json:"category_bonus"`
	HotLeadMinScore          int                   `yaml:"hot_lead_min_score" json:"hot_lead_min_score" validate:"gte=0"`
	KeyNormalizers           normalizers.KeyChains `yaml:"key_normalizers" json:"key_normalizers"`
}

// PayloadSignal is a JMESPath expression evaluated against a record payload whose
// result is checked for bar and restaurant keywords
type PayloadSignal struct {
	Source     models.SourceSystem `yaml:"source" json:"source" validate:"required"`
	Expression string              `yaml:"expression" json:"expression" validate:"required"`
}

// NAICSRule maps an industry code found in a payload to a category
type NAICSRule struct {
	Source     models.SourceSystem `yaml:"source" json:"source" validate:"required"`
	Expression string              `yaml:"expression" json:"expression" validate:"required"`
	Code       string              `yaml:"code" json:"code" validate:"required,numeric"`
	Match      string              `yaml:"match" json:"match" validate:"required,oneof=exact prefix"`
	Category   models.Category     `yaml:"category" json:"category" validate:"required,oneof=bar restaurant"`
}

// Matches reports whether code satisfies the rule
func (r NAICSRule) Matches(code string) bool {
	code = strings.TrimSpace(code)
	if r.Match == "prefix" {
		return strings.HasPrefix(code, r.Code)
	}
	return code == r.Code
}

// StageRule is one row of the (source, event type) -> stage table
type StageRule struct {
	Source    string           `yaml:"source" json:"source" validate:"required"`
	EventType models.EventType `yaml:"event_type" json:"event_type" validate:"required"`
	Stage     models.Stage     `yaml:"stage" json:"stage" validate:"required"`
}

// RecencyThreshold awards Bonus when a venue was last seen at most Days ago
type RecencyThreshold struct {
	Days  int `yaml:"days" json:"days" validate:"gte=0"`
	Bonus int `yaml:"bonus" json:"bonus" validate:"gt=0"`
}

// ContactBonus rewards venues with a reachable phone or website. Both bonuses must be
// positive so that contact details always lift a lead.
type ContactBonus struct {
	Phone   int `yaml:"phone" json:"phone" validate:"gt=0"`
	Website int `yaml:"website" json:"website" validate:"gt=0"`
}

type CategoryBonus struct {
	Bar        int `yaml:"bar" json:"bar" validate:"gte=0"`
	Restaurant int `yaml:"restaurant" json:"restaurant" validate:"gte=0"`
}

// Default returns the built-in rules
func Default() *Rules {
	r, err := Parse(defaultRules, &Rules{})
	if err != nil {
		panic(fmt.Sprintf("built-in rules are invalid: %v", err))
	}
	return r
}

// Load reads a rules file layered over the built-in rules. Keys missing from the
// file keep their default values. An empty path returns the defaults.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return Parse(b, Default())
}

// Parse decodes YAML onto base and validates the result
func Parse(b []byte, base *Rules) (*Rules, error) {
	r := *base
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks field constraints and the cross-field invariants scoring relies on
func (r *Rules) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid rules: %s", validationMessage(err))
	}

	for _, src := range r.RestaurantDefaultSources {
		if !src.Valid() {
			return fmt.Errorf("invalid rules: unknown restaurant default source %q", src)
		}
	}
	for _, sig := range r.PayloadSignals {
		if !sig.Source.Valid() {
			return fmt.Errorf("invalid rules: unknown payload signal source %q", sig.Source)
		}
	}
	for _, rule := range r.NAICS {
		if !rule.Source.Valid() {
			return fmt.Errorf("invalid rules: unknown naics source %q", rule.Source)
		}
	}
	for _, row := range r.StageTable {
		if row.Source != AnySource && !models.SourceSystem(row.Source).Valid() {
			return fmt.Errorf("invalid rules: unknown stage table source %q", row.Source)
		}
		if !row.Stage.Valid() {
			return fmt.Errorf("invalid rules: unknown stage %q", row.Stage)
		}
	}

	if err := r.KeyNormalizers.Validate(); err != nil {
		return fmt.Errorf("invalid rules: key_normalizers: %w", err)
	}

	seen := make(map[models.Stage]bool)
	for _, st := range r.StagePriorityOrder {
		if !st.Valid() {
			return fmt.Errorf("invalid rules: unknown stage %q in stage_priority_order", st)
		}
		if seen[st] {
			return fmt.Errorf("invalid rules: stage %q listed twice in stage_priority_order", st)
		}
		seen[st] = true
	}

	for i := 1; i < len(r.RecencyThresholds); i++ {
		prev, cur := r.RecencyThresholds[i-1], r.RecencyThresholds[i]
		if cur.Days <= prev.Days {
			return fmt.Errorf("invalid rules: recency_thresholds days must be strictly increasing")
		}
		if cur.Bonus >= prev.Bonus {
			return fmt.Errorf("invalid rules: recency_thresholds bonus must be strictly decreasing")
		}
	}

	if r.CategoryBonus.Bar < r.CategoryBonus.Restaurant {
		return fmt.Errorf("invalid rules: category_bonus.bar must be at least category_bonus.restaurant")
	}
	// every bar or restaurant must outrank every unknown or excluded venue
	if r.CategoryBonus.Restaurant <= r.MaxNonCategoryPoints() {
		return fmt.Errorf("invalid rules: category_bonus.restaurant (%d) must exceed the combined recency, stage and contact bonuses (%d)",
			r.CategoryBonus.Restaurant, r.MaxNonCategoryPoints())
	}

	return nil
}

// MaxRecencyBonus is the bonus of the first threshold
func (r *Rules) MaxRecencyBonus() int {
	if len(r.RecencyThresholds) == 0 {
		return 0
	}
	return r.RecencyThresholds[0].Bonus
}

// StageBonus returns the bonus for a stage: the first listed stage earns
// len(order) * step, the last earns step, unlisted stages earn nothing
func (r *Rules) StageBonus(stage models.Stage) int {
	for i, st := range r.StagePriorityOrder {
		if st == stage {
			return (len(r.StagePriorityOrder) - i) * r.StageBonusStep
		}
	}
	return 0
}

// MaxNonCategoryPoints is the highest score a venue can reach without a category bonus
func (r *Rules) MaxNonCategoryPoints() int {
	return r.MaxRecencyBonus() + len(r.StagePriorityOrder)*r.StageBonusStep + r.ContactBonus.Phone + r.ContactBonus.Website
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
