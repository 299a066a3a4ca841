package apns

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PushType identifies the category of a notification. It governs which
// headers and payload fields are required and which are forbidden.
type PushType string

// Push types defined by the APNs provider API.
const (
	PushTypeAlert        PushType = "alert"
	PushTypeBackground   PushType = "background"
	PushTypeLocation     PushType = "location"
	PushTypeVoip         PushType = "voip"
	PushTypeComplication PushType = "complication"
	PushTypeFileProvider PushType = "fileprovider"
	PushTypeMDM          PushType = "mdm"
	PushTypeLiveActivity PushType = "liveactivity"
	PushTypePushToTalk   PushType = "pushtotalk"
)

var pushTypes = map[PushType]bool{
	PushTypeAlert:        true,
	PushTypeBackground:   true,
	PushTypeLocation:     true,
	PushTypeVoip:         true,
	PushTypeComplication: true,
	PushTypeFileProvider: true,
	PushTypeMDM:          true,
	PushTypeLiveActivity: true,
	PushTypePushToTalk:   true,
}

// silent returns true for push types that must not carry user-visible
// alert content.
func (t PushType) silent() bool {
	switch t {
	case PushTypeBackground, PushTypeVoip, PushTypeFileProvider, PushTypeMDM:
		return true
	}
	return false
}

// maxPayloadSize returns the serialized payload ceiling for the push
// type. VoIP pushes are allowed a larger payload than everything else.
func (t PushType) maxPayloadSize() int {
	if t == PushTypeVoip {
		return MaxVoipPayloadSize
	}
	return MaxPayloadSize
}

// Notification is a single validated push request. It is immutable
// once built; construct it with NewNotification and reuse the builder
// for subsequent sends if needed.
type Notification struct {
	deviceToken string
	topic       string
	id          string // client-supplied apns-id, may be empty
	collapseID  string
	expiration  time.Time
	priority    int
	pushType    PushType
	payload     Payload
	body        []byte // serialized payload, fixed at build time
}

// DeviceToken returns the target device token.
func (n *Notification) DeviceToken() string { return n.deviceToken }

// Topic returns the apns-topic the notification is addressed to.
func (n *Notification) Topic() string { return n.topic }

// ID returns the client-supplied apns-id, or an empty string when the
// server is left to generate one.
func (n *Notification) ID() string { return n.id }

// PushType returns the notification push type.
func (n *Notification) PushType() PushType { return n.pushType }

// Body returns the serialized JSON request body.
func (n *Notification) Body() []byte { return n.body }

// NotificationBuilder assembles and validates a Notification. No
// partially built notification is observable: the only way out is
// Build, which either returns a consistent Notification or a
// *ValidationError.
type NotificationBuilder struct {
	n Notification
}

// NewNotification starts building a notification for the given device
// token and topic.
func NewNotification(deviceToken, topic string) *NotificationBuilder {
	b := new(NotificationBuilder)
	b.n.deviceToken = deviceToken
	b.n.topic = topic
	b.n.pushType = PushTypeAlert
	return b
}

// ID sets a client-supplied canonical UUID as apns-id. When unset the
// server generates one and returns it in the response.
func (b *NotificationBuilder) ID(id string) *NotificationBuilder {
	b.n.id = id
	return b
}

// CollapseID sets the coalescing identifier: multiple notifications
// with the same collapse id are displayed as one.
func (b *NotificationBuilder) CollapseID(id string) *NotificationBuilder {
	b.n.collapseID = id
	return b
}

// Expiration sets the time until which APNs stores and retries the
// notification. The zero time requests a single immediate attempt.
func (b *NotificationBuilder) Expiration(t time.Time) *NotificationBuilder {
	b.n.expiration = t
	return b
}

// Priority sets the delivery priority: 10 delivers immediately, 5
// respects device power state. Zero leaves the header unset.
func (b *NotificationBuilder) Priority(p int) *NotificationBuilder {
	b.n.priority = p
	return b
}

// PushType sets the notification category. Alert is the default.
func (b *NotificationBuilder) PushType(t PushType) *NotificationBuilder {
	b.n.pushType = t
	return b
}

// Alert sets the structured alert dictionary.
func (b *NotificationBuilder) Alert(a Alert) *NotificationBuilder {
	b.n.payload.APS.Alert = a
	return b
}

// AlertText sets the plain-string alert form. Mutually exclusive with
// Alert.
func (b *NotificationBuilder) AlertText(text string) *NotificationBuilder {
	b.n.payload.APS.AlertText = text
	return b
}

// Badge sets the number shown on the app icon; zero removes it.
func (b *NotificationBuilder) Badge(n int) *NotificationBuilder {
	b.n.payload.APS.Badge = &n
	return b
}

// Sound sets the sound file played on delivery.
func (b *NotificationBuilder) Sound(name string) *NotificationBuilder {
	b.n.payload.APS.Sound = &Sound{Name: name}
	return b
}

// CriticalSound sets a critical alert sound with the given volume.
func (b *NotificationBuilder) CriticalSound(name string, volume float64) *NotificationBuilder {
	b.n.payload.APS.Sound = &Sound{Name: name, Critical: true, Volume: volume}
	return b
}

// ThreadID sets the app-specific grouping identifier.
func (b *NotificationBuilder) ThreadID(id string) *NotificationBuilder {
	b.n.payload.APS.ThreadID = id
	return b
}

// Category sets the notification category for actionable buttons.
func (b *NotificationBuilder) Category(c string) *NotificationBuilder {
	b.n.payload.APS.Category = c
	return b
}

// ContentAvailable marks the notification as a silent background
// delivery.
func (b *NotificationBuilder) ContentAvailable() *NotificationBuilder {
	b.n.payload.APS.ContentAvailable = true
	return b
}

// MutableContent allows a notification service extension to modify the
// content before display.
func (b *NotificationBuilder) MutableContent() *NotificationBuilder {
	b.n.payload.APS.MutableContent = true
	return b
}

// InterruptionLevel sets the presentation interruption level.
func (b *NotificationBuilder) InterruptionLevel(l InterruptionLevel) *NotificationBuilder {
	b.n.payload.APS.InterruptionLevel = l
	return b
}

// RelevanceScore sets the score the system uses to sort notifications.
func (b *NotificationBuilder) RelevanceScore(score float64) *NotificationBuilder {
	b.n.payload.APS.RelevanceScore = &score
	return b
}

// TargetContentID sets the identifier of the window brought forward.
func (b *NotificationBuilder) TargetContentID(id string) *NotificationBuilder {
	b.n.payload.APS.TargetContentID = id
	return b
}

// DismissalDate sets when the system removes the notification.
func (b *NotificationBuilder) DismissalDate(t time.Time) *NotificationBuilder {
	b.n.payload.APS.DismissalDate = t.Unix()
	return b
}

// URLArgs sets the Safari web push URL format arguments.
func (b *NotificationBuilder) URLArgs(args ...string) *NotificationBuilder {
	b.n.payload.APS.URLArgs = args
	return b
}

// APS replaces the whole aps dictionary. Useful for Live Activity and
// other payloads assembled outside the chained setters.
func (b *NotificationBuilder) APS(aps APS) *NotificationBuilder {
	b.n.payload.APS = aps
	return b
}

// Custom adds a custom top-level payload key next to aps.
func (b *NotificationBuilder) Custom(key string, value any) *NotificationBuilder {
	if b.n.payload.Custom == nil {
		b.n.payload.Custom = make(map[string]any)
	}
	b.n.payload.Custom[key] = value
	return b
}

// Build validates the assembled fields and returns an immutable
// Notification, or a *ValidationError describing the violated rule.
// Nothing is sent over the wire; Build performs no I/O.
func (b *NotificationBuilder) Build() (*Notification, error) {
	n := b.n // copy, so the builder may be reused
	if !isDeviceToken(n.deviceToken) {
		return nil, &ValidationError{Kind: BadDeviceToken,
			Detail: "must be exactly 64 hexadecimal characters"}
	}
	if !pushTypes[n.pushType] {
		return nil, &ValidationError{Kind: InvalidPushType, Detail: string(n.pushType)}
	}
	if n.topic == "" {
		return nil, &ValidationError{Kind: MissingTopic,
			Detail: "apns-topic is required for push type " + string(n.pushType)}
	}
	if n.priority != 0 && n.priority != 5 && n.priority != 10 {
		return nil, &ValidationError{Kind: BadPriority,
			Detail: "apns-priority must be 5 or 10"}
	}
	if n.id != "" {
		if _, err := uuid.Parse(n.id); err != nil {
			return nil, &ValidationError{Kind: BadNotificationID,
				Detail: "apns-id must be a canonical UUID"}
		}
	}
	aps := &n.payload.APS
	if aps.AlertText != "" && !aps.Alert.isEmpty() {
		return nil, &ValidationError{Kind: ConflictingFields,
			Detail: "plain-string and structured alert forms are mutually exclusive"}
	}
	if n.pushType.silent() && aps.hasAlertContent() {
		return nil, &ValidationError{Kind: ConflictingFields,
			Detail: "push type " + string(n.pushType) + " must not carry alert content"}
	}
	body, err := json.Marshal(n.payload)
	if err != nil {
		return nil, &ValidationError{Kind: ConflictingFields, Detail: err.Error()}
	}
	if max := n.pushType.maxPayloadSize(); len(body) > max {
		return nil, &ValidationError{Kind: PayloadTooLarge,
			Detail: fmt.Sprintf("%d bytes, limit %d", len(body), max)}
	}
	n.body = body
	return &n, nil
}

// isDeviceToken reports whether s is a valid device token: exactly 64
// hexadecimal characters.
func isDeviceToken(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
