// Package report holds the progressive state of one analysis reading:
// the chart, the per-section records, and the final narrative. One Store
// instance lives per session; readers get consistent snapshots.
package report

// Section keys the backend produces, in presentation order.
const (
	SectionFiveElements       = "five_elements"
	SectionTenGods            = "ten_gods"
	SectionDayMaster          = "day_master"
	SectionAgePeriodsTimeline = "age_periods_timeline"
	SectionCareer             = "career"
	SectionWealth             = "wealth"
	SectionRelationships      = "relationships"
	SectionHealth             = "health"
)

var sectionCatalog = []string{
	SectionFiveElements,
	SectionTenGods,
	SectionDayMaster,
	SectionAgePeriodsTimeline,
	SectionCareer,
	SectionWealth,
	SectionRelationships,
	SectionHealth,
}

// SectionKeys returns the fixed catalog in presentation order.
func SectionKeys() []string {
	keys := make([]string, len(sectionCatalog))
	copy(keys, sectionCatalog)
	return keys
}

// IsKnownSection reports whether a key belongs to the catalog. Unknown
// keys are still stored (newer backends may grow sections) but do not
// count toward progress.
func IsKnownSection(key string) bool {
	for _, k := range sectionCatalog {
		if k == key {
			return true
		}
	}
	return false
}

// TrackedUnits is the denominator of progress: the chart, every catalog
// section, and the final narrative.
func TrackedUnits() int {
	return len(sectionCatalog) + 2
}
