// Package notification sends templated notices over pluggable notifiers.
//
// A NotificationManager maps a NoticeType to one NoticeTemplate per
// NotificationSystem and hands the rendered notice to the Notifier registered
// for that system. Email can go out over SMTP (EmailNotifier, go-mail) or
// Amazon SES (SESNotifier). MockNotifier records notices for tests.
//
//	nm, err := notification.NewNotificationManagerWithOptions(
//		notification.WithSMTP(notification.SMTPConfig{
//			Host: "localhost",
//			Port: 1025,
//			From: "noreply@example.com",
//		}),
//		notification.WithDefaultTemplates(),
//	)
//
//	err = nm.Send(notification.EmailVerification, notification.NotificationData{
//		To:   "alice@example.com",
//		Data: map[string]string{"Name": "Alice", "Link": link, "SiteName": "Example"},
//	})
//
// Templates use text/template and html/template syntax against Data.
package notification
