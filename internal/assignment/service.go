// internal/assignment/service.go
package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentmatch/internal/common/database"
	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/metrics"
	"talentmatch/internal/models"
	"talentmatch/internal/store"
)

const (
	OpAssign         = "assign"
	OpConfirm        = "confirm"
	OpReject         = "reject"
	OpStart          = "start"
	OpComplete       = "complete"
	OpReset          = "reset"
	OpOfferBackup    = "offer_backup"
	OpRequestBackup  = "request_backup"
	OpDeclineBackup  = "decline_backup"
	OpActivateBackup = "activate_backup"
	OpClearBackup    = "clear_backup"
)

const (
	MsgUnavailable     = "Candidate is not available for new assignments"
	msgAlreadyAssigned = "Candidate is already assigned to: "
)

// Conflict is a commitment that blocks a candidate from a new assignment.
type Conflict struct {
	MilestoneID   string `json:"milestoneId"`
	MilestoneName string `json:"milestoneName"`
	ProjectName   string `json:"projectName"`
	Track         Track  `json:"track"`
}

// Result is the outcome of one operation. Rejected transitions come back
// with Valid false; a Go error means storage failed.
type Result struct {
	Valid             bool                `json:"valid"`
	Code              apperrors.ErrorCode `json:"code,omitempty"`
	Error             string              `json:"error,omitempty"`
	Milestone         *models.Milestone   `json:"milestone,omitempty"`
	ActiveAssignments []Conflict          `json:"activeAssignments,omitempty"`
}

type Service struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, log logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "assignment"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ==========================
// Primary Track
// ==========================

// Assign offers an unassigned milestone to a candidate.
func (s *Service) Assign(ctx context.Context, milestoneID, candidateID string) (*Result, error) {
	return s.run(ctx, OpAssign, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardPrimary(m, models.AssignmentOffered, models.AssignmentUnassigned); r != nil {
			return r, nil
		}
		if m.BackupCandidateID != nil && *m.BackupCandidateID == candidateID {
			return rejected(apperrors.ErrCodeInvalidTransition, "Candidate is already the backup for this milestone"), nil
		}
		if r, err := t.checkEligible(ctx, candidateID, m.ID); r != nil || err != nil {
			return r, err
		}
		if err := t.movePrimary(ctx, m, &candidateID, models.AssignmentOffered, nil, ""); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// Confirm commits the offered candidate and takes them off the market.
func (s *Service) Confirm(ctx context.Context, milestoneID string) (*Result, error) {
	return s.run(ctx, OpConfirm, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardPrimary(m, models.AssignmentConfirmed, models.AssignmentOffered); r != nil {
			return r, nil
		}
		candidateID := *m.AssignedCandidateID
		if r, err := t.checkEligible(ctx, candidateID, m.ID); r != nil || err != nil {
			return r, err
		}

		now := s.now()
		if err := t.movePrimary(ctx, m, &candidateID, models.AssignmentConfirmed, &now, ""); err != nil {
			return nil, err
		}
		if err := t.setAvailability(ctx, candidateID, false); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// Reject withdraws an offer. The candidate's availability is untouched.
func (s *Service) Reject(ctx context.Context, milestoneID, reason string) (*Result, error) {
	return s.run(ctx, OpReject, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardPrimary(m, models.AssignmentUnassigned, models.AssignmentOffered); r != nil {
			return r, nil
		}
		if _, _, err := t.lockCandidate(ctx, *m.AssignedCandidateID); err != nil {
			return nil, err
		}
		if err := t.movePrimary(ctx, m, nil, models.AssignmentUnassigned, nil, reason); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

func (s *Service) Start(ctx context.Context, milestoneID string) (*Result, error) {
	return s.run(ctx, OpStart, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardPrimary(m, models.AssignmentActive, models.AssignmentConfirmed); r != nil {
			return r, nil
		}
		candidateID := *m.AssignedCandidateID
		if _, _, err := t.lockCandidate(ctx, candidateID); err != nil {
			return nil, err
		}
		if err := t.movePrimary(ctx, m, &candidateID, models.AssignmentActive, m.AssignmentConfirmedAt, ""); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// Complete closes an active assignment and hands the candidate back to the market.
func (s *Service) Complete(ctx context.Context, milestoneID string) (*Result, error) {
	return s.run(ctx, OpComplete, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardPrimary(m, models.AssignmentCompleted, models.AssignmentActive); r != nil {
			return r, nil
		}
		candidateID := *m.AssignedCandidateID
		if _, _, err := t.lockCandidate(ctx, candidateID); err != nil {
			return nil, err
		}
		if err := t.movePrimary(ctx, m, &candidateID, models.AssignmentCompleted, m.AssignmentConfirmedAt, ""); err != nil {
			return nil, err
		}
		if err := t.release(ctx, candidateID, m.ID); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// Reset drops a confirmed or active primary. The candidate becomes available
// again unless another milestone still holds them.
func (s *Service) Reset(ctx context.Context, milestoneID, reason string) (*Result, error) {
	return s.run(ctx, OpReset, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardPrimary(m, models.AssignmentUnassigned, models.AssignmentConfirmed, models.AssignmentActive); r != nil {
			return r, nil
		}
		candidateID := *m.AssignedCandidateID
		if _, _, err := t.lockCandidate(ctx, candidateID); err != nil {
			return nil, err
		}
		if err := t.movePrimary(ctx, m, nil, models.AssignmentUnassigned, nil, reason); err != nil {
			return nil, err
		}
		if err := t.release(ctx, candidateID, m.ID); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// ==========================
// Backup Track
// ==========================

// OfferBackup puts an available candidate on standby for a milestone.
func (s *Service) OfferBackup(ctx context.Context, milestoneID, candidateID string) (*Result, error) {
	return s.run(ctx, OpOfferBackup, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardBackup(m, models.BackupStandby, models.BackupNone); r != nil {
			return r, nil
		}
		if m.AssignedCandidateID != nil && *m.AssignedCandidateID == candidateID {
			return rejected(apperrors.ErrCodeInvalidTransition, "Backup candidate cannot be the primary candidate"), nil
		}

		available, found, err := t.lockCandidate(ctx, candidateID)
		if err != nil {
			return nil, err
		}
		if !found {
			return rejected(apperrors.ErrCodeRecordNotFound, "Candidate not found"), nil
		}
		if !available {
			return rejected(apperrors.ErrCodeCandidateUnavailable, MsgUnavailable), nil
		}

		if err := t.moveBackup(ctx, m, &candidateID, models.BackupStandby, ""); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// RequestBackup asks the standby candidate to be ready to take over.
func (s *Service) RequestBackup(ctx context.Context, milestoneID string) (*Result, error) {
	return s.backupStep(ctx, OpRequestBackup, milestoneID, models.BackupOffered, "", models.BackupStandby)
}

// DeclineBackup returns an offered backup to standby.
func (s *Service) DeclineBackup(ctx context.Context, milestoneID, reason string) (*Result, error) {
	return s.backupStep(ctx, OpDeclineBackup, milestoneID, models.BackupStandby, reason, models.BackupOffered)
}

// ActivateBackup puts the backup to work. The primary is left as is and must
// be resolved by hand.
func (s *Service) ActivateBackup(ctx context.Context, milestoneID, reason string) (*Result, error) {
	return s.run(ctx, OpActivateBackup, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardBackup(m, models.BackupActive, models.BackupStandby, models.BackupOffered); r != nil {
			return r, nil
		}
		candidateID := *m.BackupCandidateID
		if r, err := t.checkEligible(ctx, candidateID, m.ID); r != nil || err != nil {
			return r, err
		}
		if err := t.moveBackup(ctx, m, &candidateID, models.BackupActive, reason); err != nil {
			return nil, err
		}
		if err := t.setAvailability(ctx, candidateID, false); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// ClearBackup removes the backup from any state.
func (s *Service) ClearBackup(ctx context.Context, milestoneID, reason string) (*Result, error) {
	return s.run(ctx, OpClearBackup, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardBackup(m, models.BackupNone); r != nil {
			return r, nil
		}
		candidateID := *m.BackupCandidateID
		wasActive := m.BackupAssignmentStatus == models.BackupActive
		if _, _, err := t.lockCandidate(ctx, candidateID); err != nil {
			return nil, err
		}
		if err := t.moveBackup(ctx, m, nil, models.BackupNone, reason); err != nil {
			return nil, err
		}
		if wasActive {
			if err := t.release(ctx, candidateID, m.ID); err != nil {
				return nil, err
			}
		}
		return accepted(m), nil
	})
}

func (s *Service) backupStep(ctx context.Context, op, milestoneID string, to models.BackupStatus, reason string, from models.BackupStatus) (*Result, error) {
	return s.run(ctx, op, milestoneID, func(t *txn, m *models.Milestone) (*Result, error) {
		if r := guardBackup(m, to, from); r != nil {
			return r, nil
		}
		candidateID := *m.BackupCandidateID
		if _, _, err := t.lockCandidate(ctx, candidateID); err != nil {
			return nil, err
		}
		if err := t.moveBackup(ctx, m, &candidateID, to, reason); err != nil {
			return nil, err
		}
		return accepted(m), nil
	})
}

// ==========================
// Transaction Plumbing
// ==========================

// run locks the milestone row, applies fn and commits. A unique violation
// from the committed-candidate indexes becomes a double-booking result.
func (s *Service) run(ctx context.Context, op, milestoneID string, fn func(t *txn, m *models.Milestone) (*Result, error)) (*Result, error) {
	var (
		res *Result
		t   txn
	)
	err := database.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		t.tx = tx
		m, err := store.ScanMilestone(tx.QueryRowContext(ctx,
			`SELECT `+store.MilestoneColumns+` FROM milestones m JOIN projects p ON p.id = m.project_id
			WHERE m.id = $1 FOR UPDATE OF m`, milestoneID))
		if errors.Is(err, sql.ErrNoRows) {
			res = rejected(apperrors.ErrCodeRecordNotFound, "Milestone not found")
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock milestone %s: %w", milestoneID, err)
		}
		t.milestone = m

		res, err = fn(&t, m)
		return err
	})

	log := s.logger.WithFields(map[string]interface{}{"operation": op, "milestoneId": milestoneID})
	if err != nil {
		if !store.IsUniqueViolation(err) || t.candidateID == "" {
			metrics.AssignmentTransitions.WithLabelValues(op, "error").Inc()
			log.Error("assignment transition failed", map[string]interface{}{"error": err.Error()})
			return nil, err
		}
		conflicts, cerr := findConflicts(ctx, s.db, t.candidateID, milestoneID)
		if cerr != nil {
			metrics.AssignmentTransitions.WithLabelValues(op, "error").Inc()
			return nil, cerr
		}
		res = doubleBooked(conflicts)
		res.Milestone = t.milestone
	}

	outcome := "ok"
	if !res.Valid {
		outcome = "rejected"
		log.Warn("assignment transition rejected", map[string]interface{}{"code": string(res.Code), "reason": res.Error})
	} else {
		log.Info("assignment transition applied", nil)
	}
	metrics.AssignmentTransitions.WithLabelValues(op, outcome).Inc()
	return res, nil
}

type txn struct {
	tx          *sql.Tx
	milestone   *models.Milestone
	candidateID string
}

func (t *txn) lockCandidate(ctx context.Context, candidateID string) (available, found bool, err error) {
	t.candidateID = candidateID
	err = t.tx.QueryRowContext(ctx,
		`SELECT is_available FROM candidates WHERE id = $1 FOR UPDATE`, candidateID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("lock candidate %s: %w", candidateID, err)
	}
	return available, true, nil
}

// checkEligible returns a rejection when the candidate is missing, committed
// elsewhere or marked unavailable, and nil when they may be committed here.
func (t *txn) checkEligible(ctx context.Context, candidateID, milestoneID string) (*Result, error) {
	available, found, err := t.lockCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if !found {
		return rejected(apperrors.ErrCodeRecordNotFound, "Candidate not found"), nil
	}

	conflicts, err := findConflicts(ctx, t.tx, candidateID, milestoneID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		res := doubleBooked(conflicts)
		res.Milestone = t.milestone
		return res, nil
	}
	if !available {
		return rejected(apperrors.ErrCodeCandidateUnavailable, MsgUnavailable), nil
	}
	return nil, nil
}

func (t *txn) movePrimary(ctx context.Context, m *models.Milestone, candidateID *string, to models.AssignmentStatus, confirmedAt *time.Time, reason string) error {
	var confirmed interface{}
	if confirmedAt != nil {
		confirmed = *confirmedAt
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE milestones
		SET assigned_candidate_id = $2, assignment_status = $3, assignment_confirmed_at = $4, updated_at = now()
		WHERE id = $1`, m.ID, nullable(candidateID), string(to), confirmed)
	if err != nil {
		return fmt.Errorf("update primary of milestone %s: %w", m.ID, err)
	}

	subject := candidateID
	if subject == nil {
		subject = m.AssignedCandidateID
	}
	if err := t.record(ctx, m.ID, subject, TrackPrimary, string(m.AssignmentStatus), string(to), reason); err != nil {
		return err
	}

	m.AssignedCandidateID = candidateID
	m.AssignmentStatus = to
	m.AssignmentConfirmedAt = confirmedAt
	return nil
}

func (t *txn) moveBackup(ctx context.Context, m *models.Milestone, candidateID *string, to models.BackupStatus, reason string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE milestones
		SET backup_candidate_id = $2, backup_assignment_status = $3, updated_at = now()
		WHERE id = $1`, m.ID, nullable(candidateID), string(to))
	if err != nil {
		return fmt.Errorf("update backup of milestone %s: %w", m.ID, err)
	}

	subject := candidateID
	if subject == nil {
		subject = m.BackupCandidateID
	}
	if err := t.record(ctx, m.ID, subject, TrackBackup, string(m.BackupAssignmentStatus), string(to), reason); err != nil {
		return err
	}

	m.BackupCandidateID = candidateID
	m.BackupAssignmentStatus = to
	return nil
}

func (t *txn) record(ctx context.Context, milestoneID string, candidateID *string, track Track, from, to, reason string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO assignment_events (milestone_id, candidate_id, track, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		milestoneID, nullable(candidateID), string(track), from, to, reason)
	if err != nil {
		return fmt.Errorf("record assignment event: %w", err)
	}
	return nil
}

func (t *txn) setAvailability(ctx context.Context, candidateID string, available bool) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE candidates SET is_available = $2, updated_at = now() WHERE id = $1`, candidateID, available)
	if err != nil {
		return fmt.Errorf("update availability of candidate %s: %w", candidateID, err)
	}
	return nil
}

// release restores availability when no other milestone holds the candidate.
func (t *txn) release(ctx context.Context, candidateID, milestoneID string) error {
	conflicts, err := findConflicts(ctx, t.tx, candidateID, milestoneID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return nil
	}
	return t.setAvailability(ctx, candidateID, true)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// findConflicts lists the confirmed or active commitments of a candidate on
// milestones other than exclude.
func findConflicts(ctx context.Context, q querier, candidateID, exclude string) ([]Conflict, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.name, p.name, 'primary'
		FROM milestones m JOIN projects p ON p.id = m.project_id
		WHERE m.assigned_candidate_id = $1 AND m.assignment_status IN ('confirmed', 'active') AND m.id <> $2
		UNION ALL
		SELECT m.id, m.name, p.name, 'backup'
		FROM milestones m JOIN projects p ON p.id = m.project_id
		WHERE m.backup_candidate_id = $1 AND m.backup_assignment_status = 'active' AND m.id <> $2
		ORDER BY 3, 2`, candidateID, exclude)
	if err != nil {
		return nil, fmt.Errorf("find assignment conflicts: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var (
			c     Conflict
			track string
		)
		if err := rows.Scan(&c.MilestoneID, &c.MilestoneName, &c.ProjectName, &track); err != nil {
			return nil, fmt.Errorf("scan assignment conflict: %w", err)
		}
		c.Track = Track(track)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ==========================
// Results
// ==========================

func guardPrimary(m *models.Milestone, to models.AssignmentStatus, from ...models.AssignmentStatus) *Result {
	if !oneOf(m.AssignmentStatus, from) || !CanTransitionPrimary(m.AssignmentStatus, to) {
		return invalidTransition(m, TrackPrimary, string(m.AssignmentStatus), string(to))
	}
	if m.AssignmentStatus != models.AssignmentUnassigned && m.AssignedCandidateID == nil {
		return invalidTransition(m, TrackPrimary, string(m.AssignmentStatus), string(to))
	}
	return nil
}

func guardBackup(m *models.Milestone, to models.BackupStatus, from ...models.BackupStatus) *Result {
	if len(from) > 0 && !oneOf(m.BackupAssignmentStatus, from) {
		return invalidTransition(m, TrackBackup, string(m.BackupAssignmentStatus), string(to))
	}
	if !CanTransitionBackup(m.BackupAssignmentStatus, to) {
		return invalidTransition(m, TrackBackup, string(m.BackupAssignmentStatus), string(to))
	}
	if m.BackupAssignmentStatus != models.BackupNone && m.BackupCandidateID == nil {
		return invalidTransition(m, TrackBackup, string(m.BackupAssignmentStatus), string(to))
	}
	return nil
}

func oneOf[T comparable](v T, set []T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func invalidTransition(m *models.Milestone, track Track, from, to string) *Result {
	se := apperrors.NewInvalidTransitionError(string(track), from, to)
	return &Result{
		Code:      se.Code,
		Error:     se.Message + " (" + se.Details + ")",
		Milestone: m,
	}
}

func accepted(m *models.Milestone) *Result {
	return &Result{Valid: true, Milestone: m}
}

func rejected(code apperrors.ErrorCode, msg string) *Result {
	return &Result{Code: code, Error: msg}
}

func doubleBooked(conflicts []Conflict) *Result {
	var names []string
	seen := make(map[string]bool)
	for _, c := range conflicts {
		if !seen[c.ProjectName] {
			seen[c.ProjectName] = true
			names = append(names, c.ProjectName)
		}
	}
	if len(names) == 0 {
		names = []string{"another milestone"}
	}
	return &Result{
		Code:              apperrors.ErrCodeDoubleBooking,
		Error:             msgAlreadyAssigned + strings.Join(names, ", "),
		ActiveAssignments: conflicts,
	}
}

func nullable(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
