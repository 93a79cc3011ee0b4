package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeActivities_StructuredPurposesWin(t *testing.T) {
	raw := []RawActivity{
		{
			ID:   "act-1",
			Name: "Marketing",
			Purposes: []RawPurpose{
				{ID: "join-row-9", PurposeID: "pur-1", PurposeName: "Email"},
			},
			// Legacy attributes present alongside must be ignored.
			PurposeName: "Legacy purpose",
			LegalBasis:  "legacy-basis",
		},
	}

	activities := NormalizeActivities(raw)

	require.Len(t, activities, 1)
	require.Len(t, activities[0].Purposes, 1)
	assert.Equal(t, "pur-1", activities[0].Purposes[0].ID, "purposeId must win over the join-row id")
	assert.Equal(t, "Email", activities[0].Purposes[0].PurposeName)
}

func TestNormalizeActivities_JoinRowIDFallback(t *testing.T) {
	raw := []RawActivity{
		{
			ID: "act-1",
			Purposes: []RawPurpose{
				{ID: "join-row-9", PurposeName: "Email"},
			},
		},
	}

	activities := NormalizeActivities(raw)

	require.Len(t, activities, 1)
	require.Len(t, activities[0].Purposes, 1)
	assert.Equal(t, "join-row-9", activities[0].Purposes[0].ID)
}

func TestNormalizeActivities_LegacyFlatAttributes(t *testing.T) {
	raw := []RawActivity{
		{
			ID:              "act-legacy",
			Name:            "Newsletter",
			PurposeName:     "Send newsletters",
			LegalBasis:      "consent",
			DataCategory:    "contact details",
			RetentionPeriod: "12 months",
		},
	}

	activities := NormalizeActivities(raw)

	require.Len(t, activities, 1)
	require.Len(t, activities[0].Purposes, 1)

	purpose := activities[0].Purposes[0]
	assert.Equal(t, "act-legacy", purpose.ID, "legacy purpose is keyed by the activity ID")
	assert.Equal(t, "Send newsletters", purpose.PurposeName)
	assert.Equal(t, "consent", purpose.LegalBasis)
	require.Len(t, purpose.DataCategories, 1)
	assert.Equal(t, "contact details", purpose.DataCategories[0].CategoryName)
	assert.Equal(t, "12 months", purpose.DataCategories[0].RetentionPeriod)
}

func TestNormalizeActivities_DropsActivitiesWithoutID(t *testing.T) {
	raw := []RawActivity{
		{Name: "anonymous"},
		{ID: "act-1", Name: "kept"},
	}

	activities := NormalizeActivities(raw)

	require.Len(t, activities, 1)
	assert.Equal(t, "act-1", activities[0].ID)
}

func TestActivityClone_DeepCopies(t *testing.T) {
	original := Activity{
		ID: "act-1",
		Purposes: []Purpose{
			{ID: "pur-1", DataCategories: []DataCategory{{CategoryName: "contact"}}},
		},
	}

	clone := original.Clone()
	clone.Purposes[0].ID = "mutated"
	clone.Purposes[0].DataCategories[0].CategoryName = "mutated"

	assert.Equal(t, "pur-1", original.Purposes[0].ID)
	assert.Equal(t, "contact", original.Purposes[0].DataCategories[0].CategoryName)
}

func TestFindActivity(t *testing.T) {
	activities := []Activity{{ID: "a"}, {ID: "b"}}

	assert.NotNil(t, FindActivity(activities, "b"))
	assert.Nil(t, FindActivity(activities, "c"))
}
