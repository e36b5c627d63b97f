package assignment

import (
	"context"
	"database/sql"
	"testing"
	"time"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*Service, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, logger.NewTestLogger(t))
	svc.now = func() time.Time { return now }
	return svc, mock
}

type milestoneState struct {
	status    models.AssignmentStatus
	primary   interface{}
	backupSt  models.BackupStatus
	backup    interface{}
	confirmed interface{}
}

func expectLockMilestone(mock sqlmock.Sqlmock, id string, st milestoneState) {
	if st.backupSt == "" {
		st.backupSt = models.BackupNone
	}
	rows := sqlmock.NewRows([]string{
		"id", "project_id", "project_name", "name", "description", "status",
		"estimated_hours", "time_spent_hours", "skill_map",
		"assigned_candidate_id", "assignment_status", "assignment_confirmed_at",
		"backup_candidate_id", "backup_assignment_status",
		"delay_percentage", "risk_level",
		"jira_issue_key", "epic_key", "sprint_id", "sprint_name",
		"created_at", "updated_at",
	}).AddRow(
		id, "proj-1", "Apollo", "Backend API", "", "in-progress",
		40, 0, nil,
		st.primary, string(st.status), st.confirmed,
		st.backup, string(st.backupSt),
		0, nil,
		nil, nil, nil, nil,
		now, now,
	)
	mock.ExpectQuery(`FOR UPDATE OF m`).WithArgs(id).WillReturnRows(rows)
}

func expectLockCandidate(mock sqlmock.Sqlmock, id string, available bool) {
	mock.ExpectQuery(`SELECT is_available FROM candidates`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"is_available"}).AddRow(available))
}

func conflictRows(projects ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "project", "track"})
	for i, p := range projects {
		rows.AddRow("other-"+string(rune('a'+i)), "Milestone", p, "primary")
	}
	return rows
}

func expectConflicts(mock sqlmock.Sqlmock, candidateID, milestoneID string, projects ...string) {
	mock.ExpectQuery(`UNION ALL`).WithArgs(candidateID, milestoneID).WillReturnRows(conflictRows(projects...))
}

func expectEvent(mock sqlmock.Sqlmock, track Track, from, to string) {
	mock.ExpectExec(`INSERT INTO assignment_events`).
		WithArgs("m-1", sqlmock.AnyArg(), string(track), from, to, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

// ==========================
// Transition Table Tests
// ==========================

func TestTransitionTables(t *testing.T) {
	primary := []struct {
		from, to models.AssignmentStatus
		ok       bool
	}{
		{models.AssignmentUnassigned, models.AssignmentOffered, true},
		{models.AssignmentOffered, models.AssignmentConfirmed, true},
		{models.AssignmentOffered, models.AssignmentUnassigned, true},
		{models.AssignmentConfirmed, models.AssignmentActive, true},
		{models.AssignmentActive, models.AssignmentCompleted, true},
		{models.AssignmentActive, models.AssignmentUnassigned, true},
		{models.AssignmentUnassigned, models.AssignmentConfirmed, false},
		{models.AssignmentConfirmed, models.AssignmentCompleted, false},
		{models.AssignmentCompleted, models.AssignmentUnassigned, false},
	}
	for _, tt := range primary {
		assert.Equal(t, tt.ok, CanTransitionPrimary(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	backup := []struct {
		from, to models.BackupStatus
		ok       bool
	}{
		{models.BackupNone, models.BackupStandby, true},
		{models.BackupStandby, models.BackupOffered, true},
		{models.BackupOffered, models.BackupStandby, true},
		{models.BackupStandby, models.BackupActive, true},
		{models.BackupOffered, models.BackupActive, true},
		{models.BackupActive, models.BackupNone, true},
		{models.BackupNone, models.BackupActive, false},
		{models.BackupActive, models.BackupStandby, false},
	}
	for _, tt := range backup {
		assert.Equal(t, tt.ok, CanTransitionBackup(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

// ==========================
// Primary Track Tests
// ==========================

func TestAssign_Success(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentUnassigned})
	expectLockCandidate(mock, "cand-1", true)
	expectConflicts(mock, "cand-1", "m-1")
	mock.ExpectExec(`SET assigned_candidate_id`).
		WithArgs("m-1", "cand-1", "offered", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEvent(mock, TrackPrimary, "unassigned", "offered")
	mock.ExpectCommit()

	res, err := svc.Assign(context.Background(), "m-1", "cand-1")
	require.NoError(t, err)
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, models.AssignmentOffered, res.Milestone.AssignmentStatus)
	assert.Equal(t, "cand-1", *res.Milestone.AssignedCandidateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign_AlreadyCommitted(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentUnassigned})
	expectLockCandidate(mock, "cand-1", false)
	expectConflicts(mock, "cand-1", "m-1", "Apollo", "Zephyr")
	mock.ExpectCommit()

	res, err := svc.Assign(context.Background(), "m-1", "cand-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.ErrCodeDoubleBooking, res.Code)
	assert.Equal(t, "Candidate is already assigned to: Apollo, Zephyr", res.Error)
	assert.Len(t, res.ActiveAssignments, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign_Unavailable(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentUnassigned})
	expectLockCandidate(mock, "cand-1", false)
	expectConflicts(mock, "cand-1", "m-1")
	mock.ExpectCommit()

	res, err := svc.Assign(context.Background(), "m-1", "cand-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Candidate is not available for new assignments", res.Error)
}

func TestAssign_InvalidTransition(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentOffered, primary: "cand-0"})
	mock.ExpectCommit()

	res, err := svc.Assign(context.Background(), "m-1", "cand-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, res.Code)
	assert.Contains(t, res.Error, "primary: offered -> offered")
}

func TestAssign_MilestoneNotFound(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF m`).WithArgs("m-x").WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	res, err := svc.Assign(context.Background(), "m-x", "cand-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, res.Code)
}

func TestConfirm_Success(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentOffered, primary: "cand-1"})
	expectLockCandidate(mock, "cand-1", true)
	expectConflicts(mock, "cand-1", "m-1")
	mock.ExpectExec(`SET assigned_candidate_id`).
		WithArgs("m-1", "cand-1", "confirmed", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEvent(mock, TrackPrimary, "offered", "confirmed")
	mock.ExpectExec(`UPDATE candidates SET is_available`).WithArgs("cand-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Confirm(context.Background(), "m-1")
	require.NoError(t, err)
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, models.AssignmentConfirmed, res.Milestone.AssignmentStatus)
	require.NotNil(t, res.Milestone.AssignmentConfirmedAt)
	assert.Equal(t, now, *res.Milestone.AssignmentConfirmedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_UniqueViolationIsDoubleBooking(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentOffered, primary: "cand-1"})
	expectLockCandidate(mock, "cand-1", true)
	expectConflicts(mock, "cand-1", "m-1")
	mock.ExpectExec(`SET assigned_candidate_id`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()
	expectConflicts(mock, "cand-1", "m-1", "Zephyr")

	res, err := svc.Confirm(context.Background(), "m-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "Candidate is already assigned to: Zephyr", res.Error)
	assert.Equal(t, models.AssignmentOffered, res.Milestone.AssignmentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_StorageFailure(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentOffered, primary: "cand-1"})
	mock.ExpectQuery(`SELECT is_available`).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	res, err := svc.Confirm(context.Background(), "m-1")
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestComplete_RestoresAvailability(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentActive, primary: "cand-1", confirmed: now})
	expectLockCandidate(mock, "cand-1", false)
	mock.ExpectExec(`SET assigned_candidate_id`).
		WithArgs("m-1", "cand-1", "completed", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEvent(mock, TrackPrimary, "active", "completed")
	expectConflicts(mock, "cand-1", "m-1")
	mock.ExpectExec(`UPDATE candidates SET is_available`).WithArgs("cand-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Complete(context.Background(), "m-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReset_KeepsCandidateHeldElsewhere(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentConfirmed, primary: "cand-1", confirmed: now})
	expectLockCandidate(mock, "cand-1", false)
	mock.ExpectExec(`SET assigned_candidate_id`).
		WithArgs("m-1", nil, "unassigned", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEvent(mock, TrackPrimary, "confirmed", "unassigned")
	expectConflicts(mock, "cand-1", "m-1", "Zephyr")
	mock.ExpectCommit()

	res, err := svc.Reset(context.Background(), "m-1", "scope change")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Nil(t, res.Milestone.AssignedCandidateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReject_OnlyFromOffered(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentActive, primary: "cand-1"})
	mock.ExpectCommit()

	res, err := svc.Reject(context.Background(), "m-1", "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, res.Code)
}

// ==========================
// Backup Track Tests
// ==========================

func TestOfferBackup_RejectsPrimary(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentConfirmed, primary: "cand-1"})
	mock.ExpectCommit()

	res, err := svc.OfferBackup(context.Background(), "m-1", "cand-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "cannot be the primary")
}

func TestOfferBackup_RequiresAvailability(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentConfirmed, primary: "cand-1"})
	expectLockCandidate(mock, "cand-2", false)
	mock.ExpectCommit()

	res, err := svc.OfferBackup(context.Background(), "m-1", "cand-2")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgUnavailable, res.Error)
}

func TestActivateBackup_LeavesPrimaryUntouched(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{
		status: models.AssignmentActive, primary: "cand-1",
		backupSt: models.BackupStandby, backup: "cand-2",
	})
	expectLockCandidate(mock, "cand-2", true)
	expectConflicts(mock, "cand-2", "m-1")
	mock.ExpectExec(`SET backup_candidate_id`).
		WithArgs("m-1", "cand-2", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEvent(mock, TrackBackup, "standby", "active")
	mock.ExpectExec(`UPDATE candidates SET is_available`).WithArgs("cand-2", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.ActivateBackup(context.Background(), "m-1", "high risk")
	require.NoError(t, err)
	require.True(t, res.Valid, res.Error)
	assert.Equal(t, models.BackupActive, res.Milestone.BackupAssignmentStatus)
	assert.Equal(t, models.AssignmentActive, res.Milestone.AssignmentStatus)
	assert.Equal(t, "cand-1", *res.Milestone.AssignedCandidateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateBackup_NoBackup(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{status: models.AssignmentActive, primary: "cand-1"})
	mock.ExpectCommit()

	res, err := svc.ActivateBackup(context.Background(), "m-1", "")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, res.Code)
}

func TestDeclineBackup(t *testing.T) {
	svc, mock := setupMockDB(t)

	mock.ExpectBegin()
	expectLockMilestone(mock, "m-1", milestoneState{
		status: models.AssignmentActive, primary: "cand-1",
		backupSt: models.BackupOffered, backup: "cand-2",
	})
	expectLockCandidate(mock, "cand-2", true)
	mock.ExpectExec(`SET backup_candidate_id`).
		WithArgs("m-1", "cand-2", "standby").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEvent(mock, TrackBackup, "offered", "standby")
	mock.ExpectCommit()

	res, err := svc.DeclineBackup(context.Background(), "m-1", "busy")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, models.BackupStandby, res.Milestone.BackupAssignmentStatus)
}
