package merging

import (
	"strings"

	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/normalizers"
)

// ApplyEnrichment fills v's empty contact and location slots from e and returns the
// names of the changed fields. Values already on the venue are never overwritten.
func ApplyEnrichment(v *models.Venue, e models.Enrichment) []string {
	var changes []string

	if phone := normalizers.NormalizePhone(e.Phone); v.Phone == "" && phone != "" {
		v.Phone = phone
		changes = append(changes, "phone")
	}
	if website := normalizers.NormalizeWebsite(e.Website); v.Website == "" && website != "" {
		v.Website = website
		changes = append(changes, "website")
	}
	if placeID := strings.TrimSpace(e.PlaceID); v.PlaceID == "" && placeID != "" {
		v.PlaceID = placeID
		changes = append(changes, "place_id")
	}
	// coordinates travel together
	if v.Latitude == nil && v.Longitude == nil && e.Latitude != nil && e.Longitude != nil {
		lat, lng := *e.Latitude, *e.Longitude
		v.Latitude = &lat
		v.Longitude = &lng
		changes = append(changes, "coordinates")
	}

	return changes
}
