package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	statuses []*entities.RuntimeStatus
	err      error
}

func (l staticLister) List(ctx context.Context) ([]*entities.RuntimeStatus, error) {
	return l.statuses, l.err
}

type captureNotifier struct {
	msgs []*telegram.NotificationMessage
}

func (n *captureNotifier) Notify(msg *telegram.NotificationMessage) {
	n.msgs = append(n.msgs, msg)
}

func TestNewService_InvalidCron(t *testing.T) {
	_, err := NewService("every day", staticLister{}, &captureNotifier{})
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	last := time.Date(2026, 3, 1, 8, 30, 0, 0, time.Local)
	lister := staticLister{statuses: []*entities.RuntimeStatus{
		{TaskID: "t1", Name: "相册A", Status: entities.TaskStatusRunning,
			Counts: entities.HistoryCounts{Total: 5, Success: 4, Failed: 1, LastSuccessAt: &last}},
		{TaskID: "t2", Status: entities.TaskStatusErrorTerminal, LastError: "invalid or expired token",
			Counts: entities.HistoryCounts{Total: 2, Success: 2}},
	}}
	notifier := &captureNotifier{}

	svc, err := NewService("0 9 * * *", lister, notifier)
	require.NoError(t, err)
	require.NoError(t, svc.RunOnce(context.Background()))

	require.Len(t, notifier.msgs, 1)
	content := notifier.msgs[0].Content
	assert.Equal(t, "digest", notifier.msgs[0].Type)
	assert.Contains(t, content, "相册A [running]: 成功 4, 失败 1, 最近 03-01 08:30")
	assert.Contains(t, content, "t2 [error_terminal]")
	assert.Contains(t, content, "错误: invalid or expired token")
	assert.Contains(t, content, "合计: 7 条记录, 成功 6, 失败 1")
}

func TestRunOnce_NoTasksOrError(t *testing.T) {
	notifier := &captureNotifier{}

	svc, err := NewService("0 9 * * *", staticLister{}, notifier)
	require.NoError(t, err)
	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Empty(t, notifier.msgs)

	svc, err = NewService("0 9 * * *", staticLister{err: errors.New("db down")}, notifier)
	require.NoError(t, err)
	assert.Error(t, svc.RunOnce(context.Background()))
}

func TestStartStop(t *testing.T) {
	svc, err := NewService("*/5 * * * *", staticLister{}, &captureNotifier{})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(ctx)
}
