// Package risk predicts schedule risk for milestones and reacts to high risk
// by alerting and activating the standby backup candidate.
package risk

import (
	"context"
	"time"

	"talentmatch/internal/ai"
	"talentmatch/internal/assignment"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"
)

const activationReason = "high schedule risk"

type Store interface {
	GetMilestone(ctx context.Context, id string) (*models.Milestone, error)
	ListOpenMilestones(ctx context.Context) ([]models.Milestone, error)
	UpdateRiskLevel(ctx context.Context, milestoneID string, level models.RiskLevel) error
	CreateRiskAlert(ctx context.Context, a *models.RiskAlert) error
}

type Predictor interface {
	PredictRisk(ctx context.Context, in ai.RiskInput) (models.RiskPrediction, models.ScoreSource)
}

type Publisher interface {
	PublishRiskAlert(ctx context.Context, m *models.Milestone, alert *models.RiskAlert) error
}

type BackupActivator interface {
	ActivateBackup(ctx context.Context, milestoneID, reason string) (*assignment.Result, error)
}

// Evaluation is what one risk check did.
type Evaluation struct {
	MilestoneID     string             `json:"milestoneId"`
	RiskLevel       models.RiskLevel   `json:"riskLevel"`
	Source          models.ScoreSource `json:"source"`
	Alert           *models.RiskAlert  `json:"alert,omitempty"`
	Published       bool               `json:"published"`
	BackupActivated bool               `json:"backupActivated"`
	BackupError     string             `json:"backupError,omitempty"`
}

type Monitor struct {
	store     Store
	predictor Predictor
	publisher Publisher
	backups   BackupActivator
	logger    logger.Logger
}

// NewMonitor wires a monitor. publisher may be nil when SNS is disabled.
func NewMonitor(store Store, predictor Predictor, publisher Publisher, backups BackupActivator, log logger.Logger) *Monitor {
	return &Monitor{
		store:     store,
		predictor: predictor,
		publisher: publisher,
		backups:   backups,
		logger:    log.WithFields(map[string]interface{}{"component": "risk_monitor"}),
	}
}

// Evaluate predicts and stores the milestone's risk level. An alert is written
// when the risk is above low or the level changed. Entering high risk publishes
// the alert once; later sweeps that stay high only record it. While high, a
// standby or offered backup is activated and the primary is left as is.
func (m *Monitor) Evaluate(ctx context.Context, milestoneID string) (*Evaluation, error) {
	milestone, err := m.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	return m.evaluate(ctx, milestone)
}

func (m *Monitor) evaluate(ctx context.Context, milestone *models.Milestone) (*Evaluation, error) {
	prediction, source := m.predictor.PredictRisk(ctx, ai.RiskInput{
		Name:            milestone.Name,
		Description:     milestone.Description,
		DelayPercentage: milestone.DelayPercentage,
		EstimatedHours:  milestone.EstimatedHours,
	})
	eval := &Evaluation{MilestoneID: milestone.ID, RiskLevel: prediction.RiskLevel, Source: source}

	changed := milestone.RiskLevel == nil || *milestone.RiskLevel != prediction.RiskLevel
	if changed {
		if err := m.store.UpdateRiskLevel(ctx, milestone.ID, prediction.RiskLevel); err != nil {
			return nil, err
		}
	}
	if prediction.RiskLevel == models.RiskLow && !changed {
		return eval, nil
	}

	alert := &models.RiskAlert{MilestoneID: milestone.ID, RiskPrediction: prediction, Source: source}
	if err := m.store.CreateRiskAlert(ctx, alert); err != nil {
		return nil, err
	}
	eval.Alert = alert

	log := m.logger.WithFields(map[string]interface{}{
		"milestoneId": milestone.ID,
		"riskLevel":   string(prediction.RiskLevel),
		"source":      string(source),
	})
	log.Info("risk alert recorded", map[string]interface{}{"delayPercentage": prediction.DelayPercentage})

	if prediction.RiskLevel != models.RiskHigh {
		return eval, nil
	}

	if changed && m.publisher != nil {
		if err := m.publisher.PublishRiskAlert(ctx, milestone, alert); err != nil {
			log.Warn("risk alert publish failed", map[string]interface{}{"error": err.Error()})
		} else {
			eval.Published = true
		}
	}

	if m.backups != nil && milestone.BackupCandidateID != nil &&
		(milestone.BackupAssignmentStatus == models.BackupStandby || milestone.BackupAssignmentStatus == models.BackupOffered) {
		res, err := m.backups.ActivateBackup(ctx, milestone.ID, activationReason)
		switch {
		case err != nil:
			return nil, err
		case !res.Valid:
			eval.BackupError = res.Error
			log.Warn("backup activation rejected", map[string]interface{}{"reason": res.Error})
		default:
			eval.BackupActivated = true
			log.Info("backup candidate activated", map[string]interface{}{"candidateId": *milestone.BackupCandidateID})
		}
	}
	return eval, nil
}

// Sweep evaluates every open milestone. Failures are logged and skipped.
func (m *Monitor) Sweep(ctx context.Context) (evaluated, failed int, err error) {
	milestones, err := m.store.ListOpenMilestones(ctx)
	if err != nil {
		return 0, 0, err
	}
	for i := range milestones {
		if ctx.Err() != nil {
			return evaluated, failed, ctx.Err()
		}
		if _, err := m.evaluate(ctx, &milestones[i]); err != nil {
			failed++
			m.logger.Error("risk evaluation failed", map[string]interface{}{
				"milestoneId": milestones[i].ID,
				"error":       err.Error(),
			})
			continue
		}
		evaluated++
	}
	return evaluated, failed, nil
}

// Run sweeps every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evaluated, failed, err := m.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				m.logger.Error("risk sweep failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			m.logger.Info("risk sweep finished", map[string]interface{}{"evaluated": evaluated, "failed": failed})
		}
	}
}
