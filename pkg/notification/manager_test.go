package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNotice NoticeType = "test_notice"

func TestNewNotificationManager(t *testing.T) {
	nm := NewNotificationManager()
	require.NotNil(t, nm)
	assert.NotNil(t, nm.notifiers)
	assert.NotNil(t, nm.notificationRegistry)
}

func TestRegisterNotifier(t *testing.T) {
	nm := NewNotificationManager()
	mockNotifier := &MockNotifier{}

	nm.RegisterNotifier(EmailSystem, mockNotifier)
	assert.Same(t, mockNotifier, nm.notifiers[EmailSystem])

	newMockNotifier := &MockNotifier{}
	nm.RegisterNotifier(EmailSystem, newMockNotifier)
	assert.Same(t, newMockNotifier, nm.notifiers[EmailSystem])
}

func TestRegisterNotification(t *testing.T) {
	nm := NewNotificationManager()

	tests := []struct {
		name        string
		noticeType  NoticeType
		system      NotificationSystem
		template    NoticeTemplate
		shouldError bool
	}{
		{
			name:       "Valid registration with both Text and Html",
			noticeType: testNotice,
			system:     EmailSystem,
			template:   NoticeTemplate{Subject: "Example Email", Text: "This is an example email", Html: "<p>This is an example email</p>"},
		},
		{
			name:       "Valid registration with Html only",
			noticeType: testNotice,
			system:     EmailSystem,
			template:   NoticeTemplate{Subject: "Example Email", Html: "<p>This is an example email</p>"},
		},
		{
			name:        "Empty notice type",
			system:      EmailSystem,
			template:    NoticeTemplate{Subject: "Example Email", Text: "This is an example email"},
			shouldError: true,
		},
		{
			name:        "Empty system",
			noticeType:  testNotice,
			template:    NoticeTemplate{Subject: "Example Email", Text: "This is an example email"},
			shouldError: true,
		},
		{
			name:        "Empty subject",
			noticeType:  testNotice,
			system:      EmailSystem,
			template:    NoticeTemplate{Text: "This is an example email"},
			shouldError: true,
		},
		{
			name:        "No content",
			noticeType:  testNotice,
			system:      EmailSystem,
			template:    NoticeTemplate{Subject: "Example Email"},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := nm.RegisterNotification(tt.noticeType, tt.system, tt.template)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.template, nm.notificationRegistry[tt.noticeType][tt.system])
		})
	}
}

func TestSend(t *testing.T) {
	nm := NewNotificationManager()
	mockEmailNotifier := &MockNotifier{}
	nm.RegisterNotifier(EmailSystem, mockEmailNotifier)

	err := nm.RegisterNotification(testNotice, EmailSystem, NoticeTemplate{Subject: "Example Notification", Html: "<p>Hello {{.Name}}</p>"})
	require.NoError(t, err)

	testData := NotificationData{
		To:   "user@example.com",
		Data: map[string]string{"Name": "Alice"},
	}
	require.NoError(t, nm.Send(testNotice, testData))

	sent := mockEmailNotifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testData.To, sent[0].To)
	assert.Equal(t, "Alice", sent[0].Data["Name"])
}

func TestSendErrors(t *testing.T) {
	nm := NewNotificationManager()

	err := nm.Send("unregistered", NotificationData{})
	assert.Error(t, err)

	err = nm.RegisterNotification(testNotice, EmailSystem, NoticeTemplate{Subject: "Example Notification", Html: "<p>example</p>"})
	require.NoError(t, err)

	err = nm.Send(testNotice, NotificationData{})
	require.Error(t, err)
	assert.Equal(t, "no notifier registered for system: email", err.Error())

	failing := &MockNotifier{Err: errors.New("smtp down")}
	nm.RegisterNotifier(EmailSystem, failing)
	err = nm.Send(testNotice, NotificationData{To: "user@example.com"})
	assert.EqualError(t, err, "smtp down")
}

func TestEmailVerificationTemplate(t *testing.T) {
	mock := &MockNotifier{}
	nm, err := NewNotificationManagerWithOptions(
		WithNotifier(EmailSystem, mock),
		WithDefaultTemplates(),
	)
	require.NoError(t, err)

	tmpl := nm.notificationRegistry[EmailVerification][EmailSystem]
	assert.Equal(t, "Verify your email address", tmpl.Subject)
	assert.NotEmpty(t, tmpl.Html)
	assert.NotEmpty(t, tmpl.Text)

	rendered, err := render(NotificationData{
		To: "alice@example.com",
		Data: map[string]string{
			"Name":     "Alice",
			"Link":     "https://example.com/verify?account_id=1&token=abc",
			"SiteName": "Example",
		},
	}, tmpl)
	require.NoError(t, err)
	assert.Contains(t, rendered.Html, "Hello Alice")
	assert.Contains(t, rendered.Html, "https://example.com/verify?account_id=1&amp;token=abc")
	assert.Contains(t, rendered.Text, "https://example.com/verify?account_id=1&token=abc")
	assert.Contains(t, rendered.Text, "Example")
}
