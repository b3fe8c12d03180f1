// Package notification delivers security notices, such as two-factor
// authentication being enabled or remembered devices being removed, to users.
//
// EmailNotifier sends through SMTP with go-mail. NoopNotifier is used when email
// is disabled and MockNotifier records calls in tests.
//
//	notifier, err := notification.NewEmailNotifier(cfg.ToSMTPConfig())
//	tmpl := notification.DefaultTemplates()[notification.TwoFactorEnabledNotice]
//	err = notifier.Send(notification.TwoFactorEnabledNotice, notification.NotificationData{
//		To:   "user@example.com",
//		Data: map[string]string{"UserID": id, "Time": now.Format(time.RFC3339)},
//	}, tmpl)
package notification
