// Package model holds the normalized activity/purpose catalog. The
// config service historically returned purposes in two shapes, a
// structured list and legacy flat attributes on the activity, so the
// raw payload is normalized once at the fetch boundary and the rest of
// the engine only ever sees the structured form.
package model

// DataCategory describes one category of data processed under a purpose.
type DataCategory struct {
	CategoryName    string `json:"categoryName"`
	RetentionPeriod string `json:"retentionPeriod"`
}

// Purpose is a single legal basis + description nested under an Activity.
type Purpose struct {
	ID             string         `json:"id"`
	LegalBasis     string         `json:"legalBasis"`
	PurposeName    string         `json:"purposeName"`
	DataCategories []DataCategory `json:"dataCategories,omitempty"`
}

// Activity is a named processing operation grouping purposes.
type Activity struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Industry string    `json:"industry,omitempty"`
	Purposes []Purpose `json:"purposes"`
}

// Clone deep-copies the activity so filtered views never alias the
// canonical catalog.
func (a Activity) Clone() Activity {
	copied := a
	copied.Purposes = make([]Purpose, len(a.Purposes))
	for i, p := range a.Purposes {
		purposeCopy := p
		purposeCopy.DataCategories = append([]DataCategory(nil), p.DataCategories...)
		copied.Purposes[i] = purposeCopy
	}
	return copied
}

// RawPurpose is the wire shape of a purpose. The row carries both the
// join-row identifier (id) and the purpose's own identifier
// (purposeId); filtering must always key on the latter.
type RawPurpose struct {
	ID             string         `json:"id"`
	PurposeID      string         `json:"purposeId"`
	PurposeName    string         `json:"purposeName"`
	LegalBasis     string         `json:"legalBasis"`
	DataCategories []DataCategory `json:"dataCategories,omitempty"`
}

// RawActivity is the wire shape of an activity. Older widget
// configurations carry a single flat purpose on the activity itself
// instead of a structured purposes list.
type RawActivity struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Industry string       `json:"industry,omitempty"`
	Purposes []RawPurpose `json:"purposes,omitempty"`

	// Legacy flat attributes.
	PurposeName     string `json:"purposeName,omitempty"`
	LegalBasis      string `json:"legalBasis,omitempty"`
	DataCategory    string `json:"dataCategory,omitempty"`
	RetentionPeriod string `json:"retentionPeriod,omitempty"`
}

// NormalizeActivities converts raw activities into the internal form.
// Structured purposes win when present; the legacy flat attributes are
// folded into a single synthesized purpose otherwise. Activities with
// no identifier are dropped.
func NormalizeActivities(raw []RawActivity) []Activity {
	activities := make([]Activity, 0, len(raw))
	for _, ra := range raw {
		if ra.ID == "" {
			continue
		}
		activity := Activity{
			ID:       ra.ID,
			Name:     ra.Name,
			Industry: ra.Industry,
		}
		if len(ra.Purposes) > 0 {
			activity.Purposes = make([]Purpose, 0, len(ra.Purposes))
			for _, rp := range ra.Purposes {
				purposeID := rp.PurposeID
				if purposeID == "" {
					purposeID = rp.ID
				}
				if purposeID == "" {
					continue
				}
				activity.Purposes = append(activity.Purposes, Purpose{
					ID:             purposeID,
					LegalBasis:     rp.LegalBasis,
					PurposeName:    rp.PurposeName,
					DataCategories: append([]DataCategory(nil), rp.DataCategories...),
				})
			}
		} else if ra.PurposeName != "" || ra.LegalBasis != "" {
			legacy := Purpose{
				// Legacy rows have no separate purpose identifier; the
				// activity ID stands in so consent records stay keyed.
				ID:          ra.ID,
				LegalBasis:  ra.LegalBasis,
				PurposeName: ra.PurposeName,
			}
			if ra.DataCategory != "" {
				legacy.DataCategories = []DataCategory{{
					CategoryName:    ra.DataCategory,
					RetentionPeriod: ra.RetentionPeriod,
				}}
			}
			activity.Purposes = []Purpose{legacy}
		}
		activities = append(activities, activity)
	}
	return activities
}

// FindActivity returns the activity with the given ID, or nil.
func FindActivity(activities []Activity, id string) *Activity {
	for i := range activities {
		if activities[i].ID == id {
			return &activities[i]
		}
	}
	return nil
}
