package models

// ChangedField names one monitored attribute whose value changed in an edit.
type ChangedField string

const (
	FieldTitle       ChangedField = "title"
	FieldLocation    ChangedField = "location"
	FieldDescription ChangedField = "description"
	FieldCategory    ChangedField = "category"
	FieldSlots       ChangedField = "slots"
	FieldFee         ChangedField = "fee"
	FieldAccepting   ChangedField = "accepting_registrations"
	FieldStartAt     ChangedField = "start_at"
)

// DiffSignificantFields compares two activity snapshots by value and returns
// the monitored fields that differ. An edit is "significant", and raises a
// POST_UPDATED obligation, iff the result is non-empty. The function is
// pure: both snapshots come in as arguments and no hidden state is consulted.
func DiffSignificantFields(old, new *Activity) []ChangedField {
	var changed []ChangedField

	if old.Title != new.Title {
		changed = append(changed, FieldTitle)
	}
	if old.Location != new.Location {
		changed = append(changed, FieldLocation)
	}
	if old.Description != new.Description {
		changed = append(changed, FieldDescription)
	}
	if old.Category != new.Category {
		changed = append(changed, FieldCategory)
	}
	if old.Slots != new.Slots {
		changed = append(changed, FieldSlots)
	}
	if old.Fee != new.Fee {
		changed = append(changed, FieldFee)
	}
	if old.AcceptingRegistrations != new.AcceptingRegistrations {
		changed = append(changed, FieldAccepting)
	}
	if !old.StartAt.Equal(new.StartAt) {
		changed = append(changed, FieldStartAt)
	}

	return changed
}

// StartChanged reports whether a diff includes the start instant, which
// additionally triggers reminder rescheduling.
func StartChanged(changed []ChangedField) bool {
	for _, f := range changed {
		if f == FieldStartAt {
			return true
		}
	}
	return false
}
