package notify

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type riskMessage struct {
	MilestoneID     string           `json:"milestoneId"`
	MilestoneName   string           `json:"milestoneName"`
	ProjectName     string           `json:"projectName,omitempty"`
	RiskLevel       models.RiskLevel `json:"riskLevel"`
	DelayPercentage int              `json:"delayPercentage"`
	PredictedIssues []string         `json:"predictedIssues"`
	Recommendations []string         `json:"recommendations"`
	BackupRequired  bool             `json:"backupRequired"`
}

// AlertPublisher posts risk alerts to an SNS topic.
type AlertPublisher struct {
	client   SNSAPI
	topicARN string
	logger   logger.Logger
}

func NewAlertPublisher(client SNSAPI, topicARN string, log logger.Logger) *AlertPublisher {
	return &AlertPublisher{
		client:   client,
		topicARN: topicARN,
		logger:   log.WithFields(map[string]interface{}{"component": "alert_publisher"}),
	}
}

func (p *AlertPublisher) PublishRiskAlert(ctx context.Context, m *models.Milestone, alert *models.RiskAlert) error {
	msg, err := json.Marshal(riskMessage{
		MilestoneID:     m.ID,
		MilestoneName:   m.Name,
		ProjectName:     m.ProjectName,
		RiskLevel:       alert.RiskLevel,
		DelayPercentage: alert.DelayPercentage,
		PredictedIssues: alert.PredictedIssues,
		Recommendations: alert.Recommendations,
		BackupRequired:  alert.BackupRequired,
	})
	if err != nil {
		return fmt.Errorf("encode risk alert: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(fmt.Sprintf("[%s risk] %s", alert.RiskLevel, m.Name)),
		Message:  aws.String(string(msg)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"risk_level": {DataType: aws.String("String"), StringValue: aws.String(string(alert.RiskLevel))},
		},
	})
	if err != nil {
		return apperrors.NewNotificationError("sns", err)
	}

	p.logger.Info("risk alert published", map[string]interface{}{
		"milestoneId": m.ID,
		"riskLevel":   string(alert.RiskLevel),
		"messageId":   aws.ToString(out.MessageId),
	})
	return nil
}
