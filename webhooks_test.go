/*
Copyright 2024 Blnk Finance Authors.

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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/vetflow/config"
	"github.com/blnkfinance/vetflow/database"
)

const testWebhookURL = "http://hooks.test/webhook"

func TestSendWebhook(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	cnf := testConfig()
	cnf.Redis.Dns = mr.Addr()
	cnf.Notification.Webhook.Url = testWebhookURL
	config.MockConfig(cnf)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	v, err := NewVetflow(database.NewWithStore(database.NewMemoryStore()), WithBackend(&fakeBackend{}), WithRedis(client))
	require.NoError(t, err)
	defer v.Close()

	err = v.SendWebhook(NewWebhook{
		Event:   "payment.success",
		Payload: map[string]string{"session_id": newSessionID()},
	})
	assert.NoError(t, err)

	tasks := mr.Keys()
	assert.NotEmpty(t, tasks)
}

func TestSendWebhook_NoURL(t *testing.T) {
	v, _ := newTestVetflow(t)
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	err := v.SendWebhook(NewWebhook{Event: "payment.success", Payload: nil})
	assert.NoError(t, err)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestProcessWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	cnf := testConfig()
	cnf.Notification.Webhook.Url = testWebhookURL
	cnf.Notification.Webhook.Headers = map[string]string{"X-Signature": "secret"}
	config.MockConfig(cnf)

	var received NewWebhook
	var signature string
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		signature = req.Header.Get("X-Signature")
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
	})

	payload, err := json.Marshal(NewWebhook{Event: "submission.created", Payload: map[string]string{"reference_id": "VRF-1"}})
	require.NoError(t, err)

	err = ProcessWebhook(context.Background(), asynq.NewTask(WebhookQueue, payload))
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, "secret", signature)
	assert.Equal(t, "submission.created", received.Event)
}

func TestProcessWebhook_ReceiverErrorIsRetried(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	cnf := testConfig()
	cnf.Notification.Webhook.Url = testWebhookURL
	config.MockConfig(cnf)
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	payload, err := json.Marshal(NewWebhook{Event: "payment.failure"})
	require.NoError(t, err)

	err = ProcessWebhook(context.Background(), asynq.NewTask(WebhookQueue, payload))
	assert.Error(t, err)
}

func TestProcessWebhook_BadPayload(t *testing.T) {
	cnf := testConfig()
	cnf.Notification.Webhook.Url = testWebhookURL
	config.MockConfig(cnf)

	err := ProcessWebhook(context.Background(), asynq.NewTask(WebhookQueue, []byte("{not json")))
	assert.Error(t, err)
}
