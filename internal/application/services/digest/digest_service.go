package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/telegram"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
	"github.com/robfig/cron/v3"
)

// StatusLister 提供所有任务的状态
type StatusLister interface {
	List(ctx context.Context) ([]*entities.RuntimeStatus, error)
}

// Notifier 推送摘要
type Notifier interface {
	Notify(msg *telegram.NotificationMessage)
}

// Service 定时推送各任务的下载统计
type Service struct {
	cron     *cron.Cron
	spec     string
	lister   StatusLister
	notifier Notifier
	entryID  cron.EntryID
}

// NewService spec 使用标准5字段格式（分 时 日 月 周）
func NewService(spec string, lister StatusLister, notifier Notifier) (*Service, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid digest cron expression: %w", err)
	}
	return &Service{
		cron:     cron.New(),
		spec:     spec,
		lister:   lister,
		notifier: notifier,
	}, nil
}

// Start 注册并启动定时任务
func (s *Service) Start() error {
	id, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			logger.Error("Digest run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule digest: %w", err)
	}
	s.entryID = id
	s.cron.Start()

	logger.Info("Digest scheduler started", "cron", s.spec, "next", s.cron.Entry(id).Next)
	return nil
}

// Stop 停止调度并等待正在执行的摘要结束
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// RunOnce 立即生成并推送一次摘要
func (s *Service) RunOnce(ctx context.Context) error {
	statuses, err := s.lister.List(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return nil
	}

	s.notifier.Notify(&telegram.NotificationMessage{
		Type:      "digest",
		Title:     "每日下载统计",
		Content:   Render(statuses),
		Timestamp: time.Now(),
	})
	return nil
}

// Render 生成摘要文本
func Render(statuses []*entities.RuntimeStatus) string {
	var b strings.Builder
	var total, success, failed int
	for _, st := range statuses {
		name := st.Name
		if name == "" {
			name = st.TaskID
		}
		fmt.Fprintf(&b, "• %s [%s]: 成功 %d, 失败 %d", name, st.Status, st.Counts.Success, st.Counts.Failed)
		if st.Counts.LastSuccessAt != nil {
			fmt.Fprintf(&b, ", 最近 %s", st.Counts.LastSuccessAt.Format("01-02 15:04"))
		}
		if st.LastError != "" {
			fmt.Fprintf(&b, "\n  错误: %s", st.LastError)
		}
		b.WriteString("\n")

		total += st.Counts.Total
		success += st.Counts.Success
		failed += st.Counts.Failed
	}
	fmt.Fprintf(&b, "\n合计: %d 条记录, 成功 %d, 失败 %d", total, success, failed)
	return b.String()
}
