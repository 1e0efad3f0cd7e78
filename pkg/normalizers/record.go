package normalizers

import (
	"fmt"

	"github.com/zkinzler/dfw-openings/pkg/models"
)

// KeyChains names the registered normalizers applied, in order, to build each matching key
type KeyChains struct {
	Name    []string `yaml:"name" json:"name" validate:"required,min=1,dive,required"`
	Address []string `yaml:"address" json:"address" validate:"required,min=1,dive,required"`
	City    []string `yaml:"city" json:"city" validate:"required,min=1,dive,required"`
}

// DefaultKeyChains builds keys with the name, address and city normalizers
func DefaultKeyChains() KeyChains {
	return KeyChains{
		Name:    []string{"nname"},
		Address: []string{"naddress"},
		City:    []string{"ncity"},
	}
}

// Validate reports the first chain step that is not a registered normalizer
func (k KeyChains) Validate() error {
	for field, chain := range map[string][]string{"name": k.Name, "address": k.Address, "city": k.City} {
		for _, step := range chain {
			if _, ok := Get(step); !ok {
				return fmt.Errorf("unknown normalizer %q in %s chain", step, field)
			}
		}
	}
	return nil
}

// CityKey applies the city chain
func (k KeyChains) CityKey(s string) string {
	return ApplyChain(s, k.City...)
}

// NormalizeRecord derives the matching keys and display fields of a record with the
// default chains. Classification and fingerprint are left to the caller.
func NormalizeRecord(rec models.SourceRecord) models.NormalizedRecord {
	return NormalizeRecordWith(rec, DefaultKeyChains())
}

// NormalizeRecordWith derives the matching keys of a record through chains
func NormalizeRecordWith(rec models.SourceRecord, chains KeyChains) models.NormalizedRecord {
	return models.NormalizedRecord{
		Record:        rec,
		NameKey:       ApplyChain(rec.RawName, chains.Name...),
		AddressKey:    ApplyChain(rec.RawAddress, chains.Address...),
		CityKey:       chains.CityKey(rec.RawCity),
		DisplayCity:   DisplayCity(rec.RawCity),
		NormalizedZip: NormalizeZipCode(rec.RawPostalCode),
	}
}
