/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package vetflow

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/vetflow/config"
	"github.com/blnkfinance/vetflow/internal/request"
)

// WebhookQueue is used when the configuration names no webhook queue.
const WebhookQueue = "new:webhook"

// NewWebhook represents the structure of a webhook notification.
// It includes an event type and associated payload data.
type NewWebhook struct {
	Event   string      `json:"event"` // The event type that triggered the webhook.
	Payload interface{} `json:"data"`  // The data associated with the event.
}

func webhookQueue(conf *config.Configuration) string {
	if conf.Queue.WebhookQueue != "" {
		return conf.Queue.WebhookQueue
	}
	return WebhookQueue
}

// processHTTP posts a webhook notification to the configured URL.
//
// Parameters:
// - ctx context.Context: Bounds the request.
// - conf *config.Configuration: Supplies the URL and extra headers.
// - data NewWebhook: The webhook notification data to send.
//
// Returns:
// - error: An error if the request fails or the receiver answers with a non-2xx status.
func processHTTP(ctx context.Context, conf *config.Configuration, data NewWebhook) error {
	payload, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, payload)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	if _, err := request.Call(nil, req, nil); err != nil {
		return err
	}
	logrus.WithField("event", data.Event).Info("webhook notification sent")
	return nil
}

// SendWebhook queues a webhook notification. Without a queue the notification is
// delivered in the background instead. Nothing is sent when no webhook URL is set.
//
// Parameters:
// - newWebhook NewWebhook: The webhook notification data to send.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (v *Vetflow) SendWebhook(newWebhook NewWebhook) error {
	if v.cfg.Notification.Webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(newWebhook)
	if err != nil {
		return err
	}

	if v.queue == nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
			defer cancel()
			if err := processHTTP(ctx, v.cfg, newWebhook); err != nil {
				logrus.WithError(err).WithField("event", newWebhook.Event).Error("webhook delivery failed")
			}
		}()
		return nil
	}

	queue := webhookQueue(v.cfg)
	task := asynq.NewTask(queue, payload, asynq.Queue(queue), asynq.MaxRetry(5))
	info, err := v.queue.Enqueue(task)
	if err != nil {
		logrus.WithError(err).WithField("event", newWebhook.Event).Error("failed to enqueue webhook")
		return err
	}
	logrus.WithFields(logrus.Fields{"event": newWebhook.Event, "task_id": info.ID}).Debug("webhook enqueued")
	return nil
}

// ProcessWebhook processes a webhook notification task from the queue.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - task *asynq.Task: The task containing the webhook notification data.
//
// Returns:
// - error: An error if the webhook processing fails, which makes asynq retry the task.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("error unmarshaling webhook task payload")
		return err
	}
	logrus.WithField("event", payload.Event).Info("processing webhook")
	return processHTTP(ctx, conf, payload)
}
