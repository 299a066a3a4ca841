package apns

import (
	"encoding/json"
	"errors"
)

// Alert describes the notification content shown to the user. APNs
// accepts either a plain string or a dictionary of localized parts;
// an Alert with only Body set and no structured field marshals as the
// plain string form.
type Alert struct {
	Title           string   `json:"title,omitempty"`
	Subtitle        string   `json:"subtitle,omitempty"`
	Body            string   `json:"body,omitempty"`
	TitleLocKey     string   `json:"title-loc-key,omitempty"`
	TitleLocArgs    []string `json:"title-loc-args,omitempty"`
	SubtitleLocKey  string   `json:"subtitle-loc-key,omitempty"`
	SubtitleLocArgs []string `json:"subtitle-loc-args,omitempty"`
	ActionLocKey    string   `json:"action-loc-key,omitempty"`
	LocKey          string   `json:"loc-key,omitempty"`
	LocArgs         []string `json:"loc-args,omitempty"`
	LaunchImage     string   `json:"launch-image,omitempty"`
}

// isEmpty returns true when no alert field is set at all.
func (a Alert) isEmpty() bool { return a.Body == "" && a.isSimple() }

// isSimple returns true when the alert carries only a body and may be
// flattened to the plain string form.
func (a Alert) isSimple() bool {
	return a.Title == "" && a.Subtitle == "" &&
		a.TitleLocKey == "" && len(a.TitleLocArgs) == 0 &&
		a.SubtitleLocKey == "" && len(a.SubtitleLocArgs) == 0 &&
		a.ActionLocKey == "" && a.LocKey == "" && len(a.LocArgs) == 0 &&
		a.LaunchImage == ""
}

// Sound describes the sound to play on delivery: either a sound file
// name, or a critical alert dictionary with a volume. Critical alerts
// require the corresponding Apple entitlement.
type Sound struct {
	Name     string
	Critical bool
	Volume   float64 // 0.0...1.0, only meaningful for critical alerts
}

type criticalSound struct {
	Critical int     `json:"critical"`
	Name     string  `json:"name,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
}

// MarshalJSON emits the plain string form for a regular sound and the
// dictionary form for a critical one.
func (s Sound) MarshalJSON() ([]byte, error) {
	if !s.Critical {
		return json.Marshal(s.Name)
	}
	return json.Marshal(criticalSound{Critical: 1, Name: s.Name, Volume: s.Volume})
}

// UnmarshalJSON accepts both the string and the dictionary form.
func (s *Sound) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		s.Critical = false
		s.Volume = 0
		return json.Unmarshal(data, &s.Name)
	}
	var cs criticalSound
	if err := json.Unmarshal(data, &cs); err != nil {
		return err
	}
	*s = Sound{Name: cs.Name, Critical: cs.Critical != 0, Volume: cs.Volume}
	return nil
}

// InterruptionLevel controls how the notification is presented to the
// user and which system settings it can bypass.
type InterruptionLevel string

// Interruption levels understood by the OS.
const (
	// InterruptionActive presents the notification immediately, lights
	// up the screen and can play a sound.
	InterruptionActive InterruptionLevel = "active"
	// InterruptionCritical additionally bypasses the mute switch.
	InterruptionCritical InterruptionLevel = "critical"
	// InterruptionPassive adds the notification to the list without
	// lighting up the screen or playing a sound.
	InterruptionPassive InterruptionLevel = "passive"
	// InterruptionTimeSensitive can break through system notification
	// controls.
	InterruptionTimeSensitive InterruptionLevel = "time-sensitive"
)

// APS is the reserved part of the notification payload carrying the
// alert, sound and badge directives understood by the OS.
type APS struct {
	// The notification content. Empty for silent notifications.
	Alert Alert `json:"-"`
	// A plain-string alert. Mutually exclusive with Alert; the builder
	// rejects payloads setting both.
	AlertText string `json:"-"`
	// A number shown on top of the app icon. Nil leaves the badge
	// unchanged; a pointer to zero removes it.
	Badge *int `json:"badge,omitempty"`
	// The sound to play. Nil plays no sound.
	Sound *Sound `json:"sound,omitempty"`
	// An app-specific identifier for grouping related notifications.
	ThreadID string `json:"thread-id,omitempty"`
	// Set for silent notifications delivered to the app in the
	// background.
	ContentAvailable bool `json:"-"`
	// Set when a notification service extension may modify the content
	// before display.
	MutableContent bool `json:"-"`
	// When the notification includes a category key, the system
	// displays the actions for that category as buttons in the banner
	// or alert interface.
	Category string `json:"category,omitempty"`
	// Interruption level for delivery and presentation.
	InterruptionLevel InterruptionLevel `json:"interruption-level,omitempty"`
	// The relevance score, a number between 0 and 1, that the system
	// uses to sort the notifications from your app.
	RelevanceScore *float64 `json:"relevance-score,omitempty"`
	// The identifier of the window brought forward.
	TargetContentID string `json:"target-content-id,omitempty"`
	// The date at which the system should automatically remove the
	// notification, in seconds since the epoch.
	DismissalDate int64 `json:"dismissal-date,omitempty"`
	// Safari web push: arguments for the URL format string.
	URLArgs []string `json:"url-args,omitempty"`
	// Live Activity fields.
	Timestamp      int64           `json:"timestamp,omitempty"`
	Event          string          `json:"event,omitempty"`
	ContentState   json.RawMessage `json:"content-state,omitempty"`
	StaleDate      int64           `json:"stale-date,omitempty"`
	AttributesType string          `json:"attributes-type,omitempty"`
	Attributes     json.RawMessage `json:"attributes,omitempty"`
	// Criteria the system evaluates to determine if it displays the
	// notification in the current Focus.
	FilterCriteria string `json:"filter-criteria,omitempty"`
}

// hasAlertContent returns true when the aps dictionary carries any
// user-visible alert text or sound, which silent push types forbid.
func (aps *APS) hasAlertContent() bool {
	return aps.AlertText != "" || !aps.Alert.isEmpty() ||
		aps.Sound != nil || aps.Badge != nil
}

// apsJSON mirrors APS for marshalling; alert and the 0/1 flags need
// hand-written encoding.
type apsJSON struct {
	Alert            any `json:"alert,omitempty"`
	ContentAvailable int `json:"content-available,omitempty"`
	MutableContent   int `json:"mutable-content,omitempty"`
	*apsAlias
}

type apsAlias APS

// MarshalJSON encodes the aps dictionary, flattening a body-only alert
// to the plain string form and encoding the boolean flags as 0/1 the
// way the OS expects them.
func (aps APS) MarshalJSON() ([]byte, error) {
	out := apsJSON{apsAlias: (*apsAlias)(&aps)}
	switch {
	case aps.AlertText != "":
		out.Alert = aps.AlertText
	case !aps.Alert.isEmpty():
		if aps.Alert.isSimple() {
			out.Alert = aps.Alert.Body
		} else {
			out.Alert = aps.Alert
		}
	}
	if aps.ContentAvailable {
		out.ContentAvailable = 1
	}
	if aps.MutableContent {
		out.MutableContent = 1
	}
	return json.Marshal(out)
}

// ErrReservedKey is returned when a custom payload key collides with
// the reserved aps dictionary.
var ErrReservedKey = errors.New(`apns: "aps" is a reserved payload key`)

// Payload combines the reserved aps dictionary with arbitrary custom
// keys marshalled at the top level of the request body.
type Payload struct {
	APS    APS
	Custom map[string]any
}

// MarshalJSON produces the wire body {"aps": {...}, <custom keys>...}.
// Custom keys never override the reserved aps key.
func (p Payload) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(p.Custom)+1)
	for k, v := range p.Custom {
		if k == "aps" {
			return nil, ErrReservedKey
		}
		body[k] = v
	}
	body["aps"] = p.APS
	return json.Marshal(body)
}
