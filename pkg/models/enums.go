package models

import "strings"

// SourceSystem identifies the public-record feed a record came from
type SourceSystem string

const (
	SourceTABC             SourceSystem = "TABC"
	SourceSalesTax         SourceSystem = "SALES_TAX"
	SourceDallasCO         SourceSystem = "DALLAS_CO"
	SourceFortWorthCO      SourceSystem = "FORTWORTH_CO"
	SourceLewisvillePermit SourceSystem = "LEWISVILLE_PERMIT"
	SourceMesquitePermit   SourceSystem = "MESQUITE_PERMIT"
	SourceCarrolltonPermit SourceSystem = "CARROLLTON_PERMIT"
	SourcePlanoPermit      SourceSystem = "PLANO_PERMIT"
	SourceFriscoPermit     SourceSystem = "FRISCO_PERMIT"
	SourceDallasPermit     SourceSystem = "DALLAS_PERMIT"
	SourceArlingtonPermit  SourceSystem = "ARLINGTON_PERMIT"
	SourceDentonPermit     SourceSystem = "DENTON_PERMIT"
	SourceMcKinneyPermit   SourceSystem = "MCKINNEY_PERMIT"
	SourceFortWorthPermit  SourceSystem = "FORTWORTH_PERMIT"
	SourceManual           SourceSystem = "MANUAL"
)

// SourceSystems lists every known source
var SourceSystems = []SourceSystem{
	SourceTABC,
	SourceSalesTax,
	SourceDallasCO,
	SourceFortWorthCO,
	SourceLewisvillePermit,
	SourceMesquitePermit,
	SourceCarrolltonPermit,
	SourcePlanoPermit,
	SourceFriscoPermit,
	SourceDallasPermit,
	SourceArlingtonPermit,
	SourceDentonPermit,
	SourceMcKinneyPermit,
	SourceFortWorthPermit,
	SourceManual,
}

// Valid reports whether s is a known source
func (s SourceSystem) Valid() bool {
	for _, known := range SourceSystems {
		if s == known {
			return true
		}
	}
	return false
}

// IsCityPermit reports whether s is one of the municipal building-permit feeds
func (s SourceSystem) IsCityPermit() bool {
	return strings.HasSuffix(string(s), "_PERMIT")
}

// EventType is the kind of filing a record represents
type EventType string

const (
	EventLicenseIssued      EventType = "license_issued"
	EventOccupancyIssued    EventType = "occupancy_issued"
	EventFinalInspection    EventType = "final_inspection"
	EventPermitFiled        EventType = "permit_filed"
	EventManualVerification EventType = "manual_verification"
	EventOther              EventType = "other"
)

// EventTypes lists every event type
var EventTypes = []EventType{
	EventLicenseIssued,
	EventOccupancyIssued,
	EventFinalInspection,
	EventPermitFiled,
	EventManualVerification,
	EventOther,
}

// legacy feed spellings
var eventTypeAliases = map[string]EventType{
	"co_issued":     EventOccupancyIssued,
	"permit_issued": EventPermitFiled,
	"fire_permit":   EventPermitFiled,
	"inspection":    EventFinalInspection,
}

// ParseEventType maps a feed value onto an EventType. Unrecognized values become EventOther.
func ParseEventType(s string) EventType {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, et := range EventTypes {
		if string(et) == s {
			return et
		}
	}
	if et, ok := eventTypeAliases[s]; ok {
		return et
	}
	return EventOther
}

// Category is the venue classification
type Category string

const (
	CategoryBar        Category = "bar"
	CategoryRestaurant Category = "restaurant"
	CategoryUnknown    Category = "unknown"
	CategoryExcluded   Category = "excluded"
)

// Categories lists every category
var Categories = []Category{CategoryBar, CategoryRestaurant, CategoryUnknown, CategoryExcluded}

// Valid reports whether c is an enumerated category
func (c Category) Valid() bool {
	switch c {
	case CategoryBar, CategoryRestaurant, CategoryUnknown, CategoryExcluded:
		return true
	}
	return false
}

// Stage is the venue lifecycle stage
type Stage string

const (
	StageUnknown     Stage = "unknown"
	StagePermitting  Stage = "permitting"
	StageOpeningSoon Stage = "opening_soon"
	StageOpen        Stage = "open"
)

// Stages lists every stage in lifecycle order
var Stages = []Stage{StageUnknown, StagePermitting, StageOpeningSoon, StageOpen}

// Rank orders stages along the lifecycle: unknown < permitting < opening_soon < open.
// Values outside the enumeration rank below unknown.
func (s Stage) Rank() int {
	for i, known := range Stages {
		if s == known {
			return i
		}
	}
	return -1
}

// Valid reports whether s is an enumerated stage
func (s Stage) Valid() bool {
	return s.Rank() >= 0
}

// MaxStage returns the later of two stages
func MaxStage(a, b Stage) Stage {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
