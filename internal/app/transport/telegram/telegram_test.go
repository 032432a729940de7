package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/groupvault/internal/app/transport"
	"github.com/dalemusser/groupvault/internal/domain/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	params tgbotapi.Params
}

type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	errs    map[string]error
	block   chan struct{}
	request error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if f.block != nil {
		<-f.block
	}
	if f.request != nil {
		return nil, f.request
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{endpoint, params})
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

var ref = models.ArtifactRef{ChatID: -100123, MessageID: 77, FileID: "BQAC", FileType: models.FileTypeDocument}

func TestSendArtifact_Forwards(t *testing.T) {
	api := &fakeAPI{}
	tr := New(api, nil)

	require.NoError(t, tr.SendArtifact(context.Background(), transport.Target{ChatID: -100123, ThreadID: 5}, ref))
	require.Len(t, api.calls, 1)
	c := api.calls[0]
	assert.Equal(t, "forwardMessage", c.method)
	assert.Equal(t, "-100123", c.params["from_chat_id"])
	assert.Equal(t, "77", c.params["message_id"])
	assert.Equal(t, "5", c.params["message_thread_id"])
}

func TestSendArtifact_FallsBackToFileID(t *testing.T) {
	api := &fakeAPI{errs: map[string]error{
		"forwardMessage": &tgbotapi.Error{Code: 400, Message: "Bad Request: message to forward not found"},
	}}
	tr := New(api, nil)

	require.NoError(t, tr.SendArtifact(context.Background(), transport.Target{ChatID: 9}, ref))
	require.Len(t, api.calls, 2)
	assert.Equal(t, "sendDocument", api.calls[1].method)
	assert.Equal(t, "BQAC", api.calls[1].params["document"])
	_, hasThread := api.calls[1].params["message_thread_id"]
	assert.False(t, hasThread)
}

func TestSendArtifact_BothFail(t *testing.T) {
	boom := errors.New("network")
	api := &fakeAPI{errs: map[string]error{"forwardMessage": boom, "sendDocument": boom}}
	err := New(api, nil).SendArtifact(context.Background(), transport.Target{ChatID: 9}, ref)
	assert.ErrorIs(t, err, boom)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    transport.DeleteResult
		wantErr bool
	}{
		{"ok", nil, transport.DeleteOK, false},
		{"gone", &tgbotapi.Error{Code: 400, Message: "Bad Request: message to delete not found"}, transport.DeleteNotFound, false},
		{"wrapped gone", fmt.Errorf("delete: %w", &tgbotapi.Error{Code: 400, Message: "Bad Request: message to delete not found"}), transport.DeleteNotFound, false},
		{"invalid id", &tgbotapi.Error{Code: 400, Message: "Bad Request: MESSAGE_ID_INVALID"}, transport.DeleteNotFound, false},
		{"chat not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, transport.DeleteFailed, true},
		{"thread not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: message thread not found"}, transport.DeleteFailed, true},
		{"cannot delete", &tgbotapi.Error{Code: 400, Message: "Bad Request: message can't be deleted"}, transport.DeleteFailed, true},
		{"rate limited", &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 3"}, transport.DeleteFailed, true},
		{"network", errors.New("dial tcp: timeout"), transport.DeleteFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestDeleteArtifact_RespectsContext(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	defer close(api.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := New(api, nil).DeleteArtifact(ctx, ref)
	assert.Equal(t, transport.DeleteFailed, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
