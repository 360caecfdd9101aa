package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDate(t *testing.T) {
	t.Run("conversion respects the zone", func(t *testing.T) {
		// 23:30 UTC is already the next day in Bangkok.
		instant := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
		bangkok := time.FixedZone("ICT", 7*3600)

		assert.Equal(t, Date("2026-03-10"), DateOf(instant, time.UTC))
		assert.Equal(t, Date("2026-03-11"), DateOf(instant, bangkok))
	})

	t.Run("add days crosses month boundaries", func(t *testing.T) {
		assert.Equal(t, Date("2026-03-01"), Date("2026-02-26").AddDays(3))
		assert.Equal(t, Date("2026-02-28"), Date("2026-03-03").AddDays(-3))
	})

	t.Run("lexical comparison is chronological", func(t *testing.T) {
		assert.True(t, Date("2026-03-11").After("2026-03-10"))
		assert.False(t, Date("2026-03-10").After("2026-03-10"))
		// The empty date (immediate obligations) is never in the future.
		assert.False(t, Date("").After("2026-03-10"))
	})
}

func TestKindDeduplicated(t *testing.T) {
	for _, kind := range []Kind{
		KindOwnerFull, KindRegisterReminder, KindSavedReminder,
		KindOwnerStatusReminder, KindPostUpdated, KindPostHidden,
		KindPostDeleted, KindFollowerNewPost, KindSystem,
	} {
		assert.True(t, kind.Deduplicated(), string(kind))
	}
	assert.False(t, KindChatMessage.Deduplicated())
}
