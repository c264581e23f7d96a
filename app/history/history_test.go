package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/znelson/joblog/app/dates"
	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/enums"
)

func applied(date string) store.StatusEntry {
	return store.StatusEntry{Status: enums.StatusApplied, Date: date}
}

func interviewing(date string) store.StatusEntry {
	return store.StatusEntry{Status: enums.StatusInterviewing, Date: date}
}

func TestApply_NoChange(t *testing.T) {
	current := []store.StatusEntry{applied("2025-05-01")}
	next, err := Apply(current, Change{Status: enums.StatusApplied, PrevStatus: enums.StatusApplied})
	require.NoError(t, err)
	assert.Equal(t, current, next)
}

func TestApply_PlainStatusChange(t *testing.T) {
	current := []store.StatusEntry{interviewing("2025-05-01")}
	next, err := Apply(current, Change{Status: enums.StatusApplied, PrevStatus: enums.StatusInterviewing})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, enums.StatusApplied, next[1].Status)
	assert.Equal(t, dates.TodayLocal(), next[1].Date)
}

func TestApply_InputNeverMutated(t *testing.T) {
	current := []store.StatusEntry{applied("2025-05-01"), interviewing("2025-05-05"), interviewing("2025-05-09")}
	snapshot := append([]store.StatusEntry(nil), current...)

	_, err := Apply(current, Change{Status: enums.StatusInterviewing, PrevStatus: enums.StatusInterviewing, RoundDelta: -2})
	require.NoError(t, err)
	assert.Equal(t, snapshot, current)
}

func TestApply_RoundDelta(t *testing.T) {
	base := []store.StatusEntry{applied("2025-05-01")}

	t.Run("positive adds one round per save", func(t *testing.T) {
		next, err := Apply(base, Change{Status: enums.StatusInterviewing, PrevStatus: enums.StatusApplied,
			RoundDelta: 3, RoundDate: "2025-05-10"})
		require.NoError(t, err)
		require.Len(t, next, 2, "delta capped at one round")
		assert.Equal(t, interviewing("2025-05-10"), next[1])
	})

	t.Run("negative removes most recent rounds", func(t *testing.T) {
		current := []store.StatusEntry{applied("2025-05-01"), interviewing("2025-05-05"), interviewing("2025-05-09")}
		next, err := Apply(current, Change{Status: enums.StatusInterviewing, PrevStatus: enums.StatusInterviewing, RoundDelta: -1})
		require.NoError(t, err)
		require.Len(t, next, 2)
		assert.Equal(t, "2025-05-05", next[1].Date, "latest round removed first")
	})

	t.Run("removing more than present stops at zero", func(t *testing.T) {
		current := []store.StatusEntry{applied("2025-05-01"), interviewing("2025-05-05")}
		next, err := Apply(current, Change{Status: enums.StatusInterviewing, PrevStatus: enums.StatusInterviewing, RoundDelta: -5})
		require.NoError(t, err)
		require.Len(t, next, 1)
		assert.Equal(t, enums.StatusApplied, next[0].Status)
	})

	t.Run("loose round date normalized", func(t *testing.T) {
		next, err := Apply(base, Change{Status: enums.StatusInterviewing, PrevStatus: enums.StatusApplied,
			RoundDelta: 1, RoundDate: "2025-5-9"})
		require.NoError(t, err)
		assert.Equal(t, "2025-05-09", next[1].Date)
	})
}

func TestApply_RoundDateValidation(t *testing.T) {
	base := []store.StatusEntry{applied("2025-05-01")}

	t.Run("invalid date blocks non-privileged", func(t *testing.T) {
		_, err := Apply(base, Change{Status: enums.StatusInterviewing, PrevStatus: enums.StatusApplied,
			RoundDelta: 1, RoundDate: "next tuesday"})
		var verr *store.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "interview round date", verr.Issues[0].Path)
	})

	t.Run("privileged falls back to today", func(t *testing.T) {
		next, err := Apply(base, Change{Status: enums.StatusInterviewing, PrevStatus: enums.StatusApplied,
			RoundDelta: 1, RoundDate: "next tuesday", Privileged: true})
		require.NoError(t, err)
		require.Len(t, next, 2)
		assert.Equal(t, dates.TodayLocal(), next[1].Date)
	})
}

func TestApply_TerminalStatus(t *testing.T) {
	base := []store.StatusEntry{applied("2025-05-01"), interviewing("2025-05-05")}

	t.Run("offer appended with its date", func(t *testing.T) {
		next, err := Apply(base, Change{Status: enums.StatusOffer, PrevStatus: enums.StatusInterviewing,
			OfferDate: "2025-05-20"})
		require.NoError(t, err)
		require.Len(t, next, 3)
		assert.Equal(t, store.StatusEntry{Status: enums.StatusOffer, Date: "2025-05-20"}, next[2])
	})

	t.Run("rejection appended with its date", func(t *testing.T) {
		next, err := Apply(base, Change{Status: enums.StatusRejected, PrevStatus: enums.StatusInterviewing,
			RejectDate: "2025-05-21"})
		require.NoError(t, err)
		require.Len(t, next, 3)
		assert.Equal(t, store.StatusEntry{Status: enums.StatusRejected, Date: "2025-05-21"}, next[2])
	})

	t.Run("repeated saves never duplicate", func(t *testing.T) {
		first, err := Apply(base, Change{Status: enums.StatusOffer, PrevStatus: enums.StatusInterviewing,
			OfferDate: "2025-05-20"})
		require.NoError(t, err)

		second, err := Apply(first, Change{Status: enums.StatusOffer, PrevStatus: enums.StatusOffer,
			OfferDate: "2025-05-25"})
		require.NoError(t, err)
		assert.Equal(t, first, second, "existing terminal entry wins, date ignored")
	})

	t.Run("invalid terminal date blocks non-privileged", func(t *testing.T) {
		_, err := Apply(base, Change{Status: enums.StatusRejected, PrevStatus: enums.StatusInterviewing,
			RejectDate: "2025-02-31"})
		var verr *store.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "rejection date", verr.Issues[0].Path)
	})

	t.Run("privileged terminal date falls back to today", func(t *testing.T) {
		next, err := Apply(base, Change{Status: enums.StatusOffer, PrevStatus: enums.StatusInterviewing,
			OfferDate: "", Privileged: true})
		require.NoError(t, err)
		assert.Equal(t, dates.TodayLocal(), next[2].Date)
	})
}

func TestApply_CombinedRoundAndTerminal(t *testing.T) {
	// a save that both logs a final round and lands the offer
	base := []store.StatusEntry{applied("2025-05-01")}
	next, err := Apply(base, Change{Status: enums.StatusOffer, PrevStatus: enums.StatusInterviewing,
		RoundDelta: 1, RoundDate: "2025-05-18", OfferDate: "2025-05-20"})
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, interviewing("2025-05-18"), next[1])
	assert.Equal(t, enums.StatusOffer, next[2].Status)
}

func TestApply_ValidationFailureWritesNothing(t *testing.T) {
	base := []store.StatusEntry{applied("2025-05-01")}
	snapshot := append([]store.StatusEntry(nil), base...)

	_, err := Apply(base, Change{Status: enums.StatusOffer, PrevStatus: enums.StatusApplied,
		RoundDelta: 1, RoundDate: "bad", OfferDate: "2025-05-20"})
	require.Error(t, err)
	assert.Equal(t, snapshot, base)
}

func TestApply_EmptyHistory(t *testing.T) {
	next, err := Apply(nil, Change{Status: enums.StatusApplied, PrevStatus: ""})
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, enums.StatusApplied, next[0].Status)
}
