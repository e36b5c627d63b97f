package notify

import (
	"context"
	"strings"

	apperrors "talentmatch/internal/common/errors"
	"talentmatch/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type template struct {
	subject string
	body    string
}

var jobTemplates = map[string]template{
	"completed": {
		subject: "Your {{jobName}} job has finished",
		body:    "Good news: the {{jobName}} job you started has completed successfully.",
	},
	"failed": {
		subject: "Your {{jobName}} job failed",
		body:    "The {{jobName}} job you started could not be completed after all retries.\n\nError: {{error}}",
	},
}

type EmailNotifier struct {
	client SESAPI
	from   string
	logger logger.Logger
}

func NewEmailNotifier(client SESAPI, from string, log logger.Logger) *EmailNotifier {
	return &EmailNotifier{
		client: client,
		from:   from,
		logger: log.WithFields(map[string]interface{}{"component": "email_notifier"}),
	}
}

// SendJobCompletionEmail tells the user who queued a job how it ended.
func (n *EmailNotifier) SendJobCompletionEmail(ctx context.Context, userEmail, jobType, outcome, errMsg string) error {
	tmpl, ok := jobTemplates[outcome]
	if !ok {
		tmpl = jobTemplates["failed"]
	}
	data := map[string]string{
		"jobName": strings.ReplaceAll(jobType, "_", " "),
		"error":   errMsg,
	}
	subject := render(tmpl.subject, data)
	body := render(tmpl.body, data)

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{userEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return apperrors.NewNotificationError("email", err)
	}

	n.logger.Debug("job notification sent", map[string]interface{}{"jobType": jobType, "outcome": outcome})
	return nil
}
