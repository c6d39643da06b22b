package framearena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudgetCounterPeakTracking(t *testing.T) {
	var c budgetCounter
	live, over, peak := c.reserve(100)
	require.Equal(t, uint64(100), live)
	require.False(t, over)
	require.True(t, peak)

	_, _, peak2 := c.reserve(10)
	require.True(t, peak2)

	c.release(50)
	_, _, peak3 := c.reserve(10)
	require.False(t, peak3) // still below the prior peak of 110
}

func TestBudgetManagerFailPolicy(t *testing.T) {
	hub := newDiagnosticHub(nil)
	m := newBudgetManager(100, BudgetFail, 80, hub)

	_, err := m.reserve(nil, 50, 1, 1, "")
	require.NoError(t, err)
	_, err = m.reserve(nil, 100, 1, 1, "")
	require.ErrorIs(t, err, ErrHardLimitExceeded)
}

func TestBudgetManagerAllowPolicyNeverFails(t *testing.T) {
	hub := newDiagnosticHub(nil)
	m := newBudgetManager(10, BudgetAllow, 80, hub)
	_, err := m.reserve(nil, 1000, 1, 1, "")
	require.NoError(t, err)
}

func TestBudgetManagerScopeAndGlobalBothChecked(t *testing.T) {
	hub := newDiagnosticHub(nil)
	m := newBudgetManager(1000, BudgetFail, 80, hub)
	scope := &budgetCounter{limit: 10}

	_, err := m.reserve(scope, 20, 1, 1, "")
	require.ErrorIs(t, err, ErrHardLimitExceeded)
}

func TestBudgetManagerPromotePolicySignalsWhenGlobalHasRoom(t *testing.T) {
	hub := newDiagnosticHub(nil)
	m := newBudgetManager(1000, BudgetPromote, 80, hub)
	scope := &budgetCounter{limit: 10}

	promote, err := m.reserve(scope, 20, 1, 1, "")
	require.ErrorIs(t, err, ErrHardLimitExceeded)
	require.True(t, promote, "global counter still has room, so the scope failure should be promotable")
}

func TestBudgetManagerPromotePolicyDoesNotSignalWhenGlobalAlsoOver(t *testing.T) {
	hub := newDiagnosticHub(nil)
	m := newBudgetManager(15, BudgetPromote, 80, hub)
	scope := &budgetCounter{limit: 10}

	promote, err := m.reserve(scope, 20, 1, 1, "")
	require.ErrorIs(t, err, ErrHardLimitExceeded)
	require.False(t, promote, "global counter is also over, so there is no larger backend to promote into")
}
