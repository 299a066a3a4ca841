package apns

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDeviceToken = "883982d57cdc4138d71e16b5acbcb5debe3e625afceee809a0f32895d2ea9d51"

func validationKind(t *testing.T, err error) ValidationKind {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Kind
}

func TestBuildMinimal(t *testing.T) {
	n, err := NewNotification(testDeviceToken, "com.example.app").
		AlertText("Hello!").
		Build()
	require.NoError(t, err)
	assert.Equal(t, testDeviceToken, n.DeviceToken())
	assert.Equal(t, "com.example.app", n.Topic())
	assert.Equal(t, PushTypeAlert, n.PushType())
	assert.JSONEq(t, `{"aps":{"alert":"Hello!"}}`, string(n.Body()))
}

func TestBuildDeviceToken(t *testing.T) {
	for _, token := range []string{
		"",
		"abc123",
		testDeviceToken + "ff",                        // too long
		strings.Replace(testDeviceToken, "a", "g", 1), // non-hex
	} {
		_, err := NewNotification(token, "com.example.app").Build()
		assert.Equal(t, BadDeviceToken, validationKind(t, err), "token %q", token)
	}
	// upper and lower case hex are both accepted
	_, err := NewNotification(strings.ToUpper(testDeviceToken), "com.example.app").Build()
	assert.NoError(t, err)
}

func TestBuildMissingTopic(t *testing.T) {
	_, err := NewNotification(testDeviceToken, "").AlertText("hi").Build()
	assert.Equal(t, MissingTopic, validationKind(t, err))
}

func TestBuildSilentTypeRejectsAlert(t *testing.T) {
	for _, pt := range []PushType{
		PushTypeBackground, PushTypeVoip, PushTypeFileProvider, PushTypeMDM,
	} {
		_, err := NewNotification(testDeviceToken, "com.example.app").
			PushType(pt).
			AlertText("nope").
			Build()
		assert.Equal(t, ConflictingFields, validationKind(t, err), "push type %s", pt)
	}
	// the same types without alert content build fine
	n, err := NewNotification(testDeviceToken, "com.example.app").
		PushType(PushTypeBackground).
		ContentAvailable().
		Build()
	require.NoError(t, err)
	assert.JSONEq(t, `{"aps":{"content-available":1}}`, string(n.Body()))
}

func TestBuildConflictingAlertForms(t *testing.T) {
	_, err := NewNotification(testDeviceToken, "com.example.app").
		AlertText("plain").
		Alert(Alert{Title: "structured"}).
		Build()
	assert.Equal(t, ConflictingFields, validationKind(t, err))
}

func TestBuildInvalidPushType(t *testing.T) {
	_, err := NewNotification(testDeviceToken, "com.example.app").
		PushType("carrier-pigeon").
		Build()
	assert.Equal(t, InvalidPushType, validationKind(t, err))
}

func TestBuildPriority(t *testing.T) {
	for _, p := range []int{5, 10} {
		_, err := NewNotification(testDeviceToken, "com.example.app").
			Priority(p).AlertText("hi").Build()
		assert.NoError(t, err)
	}
	_, err := NewNotification(testDeviceToken, "com.example.app").
		Priority(7).AlertText("hi").Build()
	assert.Equal(t, BadPriority, validationKind(t, err))
}

func TestBuildNotificationID(t *testing.T) {
	n, err := NewNotification(testDeviceToken, "com.example.app").
		ID("123e4567-e89b-12d3-a456-426614174000").
		AlertText("hi").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", n.ID())

	_, err = NewNotification(testDeviceToken, "com.example.app").
		ID("not-a-uuid").
		AlertText("hi").
		Build()
	assert.Equal(t, BadNotificationID, validationKind(t, err))
}

func TestBuildPayloadTooLarge(t *testing.T) {
	big := strings.Repeat("x", MaxPayloadSize)
	_, err := NewNotification(testDeviceToken, "com.example.app").
		AlertText(big).
		Build()
	assert.Equal(t, PayloadTooLarge, validationKind(t, err))

	// voip pushes get the larger ceiling
	n, err := NewNotification(testDeviceToken, "com.example.app.voip").
		PushType(PushTypeVoip).
		Custom("blob", big).
		Build()
	require.NoError(t, err)
	assert.Greater(t, len(n.Body()), MaxPayloadSize)
}

func TestBuilderReuse(t *testing.T) {
	b := NewNotification(testDeviceToken, "com.example.app").AlertText("first")
	first, err := b.Build()
	require.NoError(t, err)
	second, err := b.AlertText("second").Build()
	require.NoError(t, err)
	// the first notification is immutable, later builds do not touch it
	assert.Contains(t, string(first.Body()), "first")
	assert.Contains(t, string(second.Body()), "second")
}

func TestBuildExpiration(t *testing.T) {
	expire := time.Now().Add(time.Hour)
	n, err := NewNotification(testDeviceToken, "com.example.app").
		AlertText("hi").
		Expiration(expire).
		CollapseID("game-score").
		Build()
	require.NoError(t, err)
	assert.Equal(t, expire.Unix(), n.expiration.Unix())
	assert.Equal(t, "game-score", n.collapseID)
}
