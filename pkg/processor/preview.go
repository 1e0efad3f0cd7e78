package processor

import (
	"github.com/zkinzler/dfw-openings/pkg/classifier"
	"github.com/zkinzler/dfw-openings/pkg/models"
)

// Preview shows how a record would be keyed and classified without touching the registry
type Preview struct {
	NameKey      string              `json:"name_key"`
	AddressKey   string              `json:"address_key"`
	CityKey      string              `json:"city_key"`
	DisplayCity  string              `json:"display_city"`
	PostalCode   string              `json:"postal_code,omitempty"`
	Category     models.Category     `json:"category"`
	Stage        models.Stage        `json:"stage"`
	Fingerprint  string              `json:"fingerprint"`
	Decision     classifier.Decision `json:"decision"`
	RulesVersion string              `json:"rules_version"`
}

// Explain validates and previews rec
func (p *Processor) Explain(rec models.SourceRecord) (*Preview, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	n := p.Normalize(rec)
	return &Preview{
		NameKey:      n.NameKey,
		AddressKey:   n.AddressKey,
		CityKey:      n.CityKey,
		DisplayCity:  n.DisplayCity,
		PostalCode:   n.NormalizedZip,
		Category:     n.Category,
		Stage:        n.Stage,
		Fingerprint:  n.Fingerprint,
		Decision:     p.classifier.Explain(rec),
		RulesVersion: p.classifier.Version(),
	}, nil
}
