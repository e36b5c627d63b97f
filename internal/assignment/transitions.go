// Package assignment is the state machine for primary and backup candidates
// of a milestone.
package assignment

import "talentmatch/internal/models"

type Track string

const (
	TrackPrimary Track = "primary"
	TrackBackup  Track = "backup"
)

var primaryTransitions = map[models.AssignmentStatus][]models.AssignmentStatus{
	models.AssignmentUnassigned: {models.AssignmentOffered},
	models.AssignmentOffered:    {models.AssignmentConfirmed, models.AssignmentUnassigned},
	models.AssignmentConfirmed:  {models.AssignmentActive, models.AssignmentUnassigned},
	models.AssignmentActive:     {models.AssignmentCompleted, models.AssignmentUnassigned},
}

var backupTransitions = map[models.BackupStatus][]models.BackupStatus{
	models.BackupNone:    {models.BackupStandby},
	models.BackupStandby: {models.BackupOffered, models.BackupActive, models.BackupNone},
	models.BackupOffered: {models.BackupStandby, models.BackupActive, models.BackupNone},
	models.BackupActive:  {models.BackupNone},
}

// CanTransitionPrimary reports whether the primary track may move from one status to another.
func CanTransitionPrimary(from, to models.AssignmentStatus) bool {
	for _, next := range primaryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionBackup reports whether the backup track may move from one status to another.
func CanTransitionBackup(from, to models.BackupStatus) bool {
	for _, next := range backupTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
