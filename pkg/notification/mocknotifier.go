package notification

import (
	"sync"
)

// NoopNotifier drops every notice.
type NoopNotifier struct{}

func (NoopNotifier) Send(NoticeType, NotificationData, NoticeTemplate) error { return nil }

// SentNotice is one call recorded by MockNotifier.
type SentNotice struct {
	Type     NoticeType
	Data     NotificationData
	Template NoticeTemplate
}

// MockNotifier records notices and optionally fails with Err.
type MockNotifier struct {
	mu   sync.Mutex
	sent []SentNotice
	Err  error
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentNotice{Type: noticeType, Data: notification, Template: template})
	return m.Err
}

// Sent returns a copy of the recorded notices.
func (m *MockNotifier) Sent() []SentNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotice, len(m.sent))
	copy(out, m.sent)
	return out
}
