package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func base() *Activity {
	return &Activity{
		Title:                  "Park cleanup",
		Location:               "East gate",
		Description:            "Bring gloves",
		Category:               "environment",
		Slots:                  20,
		Fee:                    0,
		StartAt:                time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		AcceptingRegistrations: true,
	}
}

func TestDiffSignificantFields(t *testing.T) {
	t.Run("identical activities diff empty", func(t *testing.T) {
		old, new := base(), base()
		assert.Empty(t, DiffSignificantFields(old, new))
	})

	t.Run("each field is detected", func(t *testing.T) {
		cases := []struct {
			field  ChangedField
			mutate func(a *Activity)
		}{
			{FieldTitle, func(a *Activity) { a.Title = "Forest cleanup" }},
			{FieldLocation, func(a *Activity) { a.Location = "West gate" }},
			{FieldDescription, func(a *Activity) { a.Description = "Bring boots" }},
			{FieldCategory, func(a *Activity) { a.Category = "community" }},
			{FieldSlots, func(a *Activity) { a.Slots = 30 }},
			{FieldFee, func(a *Activity) { a.Fee = 50 }},
			{FieldAccepting, func(a *Activity) { a.AcceptingRegistrations = false }},
			{FieldStartAt, func(a *Activity) { a.StartAt = a.StartAt.Add(time.Hour) }},
		}
		for _, tc := range cases {
			old, new := base(), base()
			tc.mutate(new)
			assert.Equal(t, []ChangedField{tc.field}, DiffSignificantFields(old, new), string(tc.field))
		}
	})

	t.Run("multiple changes accumulate", func(t *testing.T) {
		old, new := base(), base()
		new.Title = "Forest cleanup"
		new.StartAt = new.StartAt.Add(24 * time.Hour)

		changed := DiffSignificantFields(old, new)
		assert.ElementsMatch(t, []ChangedField{FieldTitle, FieldStartAt}, changed)
		assert.True(t, StartChanged(changed))
	})

	t.Run("equal instants in different zones are not a change", func(t *testing.T) {
		old, new := base(), base()
		new.StartAt = old.StartAt.In(time.FixedZone("ICT", 7*3600))
		assert.Empty(t, DiffSignificantFields(old, new))
	})
}
