package apns

// Reason is an APNs-defined error reason string returned in the JSON
// body of a failed request. Reason values not listed here still parse;
// an unrecognized string simply has no description and classifies as
// retryable (the conservative choice for a reason added by Apple after
// this list was written).
type Reason string

// Error reasons defined by the APNs provider API.
const (
	ReasonBadCollapseID               Reason = "BadCollapseId"
	ReasonBadDeviceToken              Reason = "BadDeviceToken"
	ReasonBadExpirationDate           Reason = "BadExpirationDate"
	ReasonBadMessageID                Reason = "BadMessageId"
	ReasonBadPriority                 Reason = "BadPriority"
	ReasonBadTopic                    Reason = "BadTopic"
	ReasonDeviceTokenNotForTopic      Reason = "DeviceTokenNotForTopic"
	ReasonDuplicateHeaders            Reason = "DuplicateHeaders"
	ReasonIdleTimeout                 Reason = "IdleTimeout"
	ReasonInvalidPushType             Reason = "InvalidPushType"
	ReasonMissingDeviceToken          Reason = "MissingDeviceToken"
	ReasonMissingTopic                Reason = "MissingTopic"
	ReasonPayloadEmpty                Reason = "PayloadEmpty"
	ReasonTopicDisallowed             Reason = "TopicDisallowed"
	ReasonBadCertificate              Reason = "BadCertificate"
	ReasonBadCertificateEnvironment   Reason = "BadCertificateEnvironment"
	ReasonExpiredProviderToken        Reason = "ExpiredProviderToken"
	ReasonForbidden                   Reason = "Forbidden"
	ReasonInvalidProviderToken        Reason = "InvalidProviderToken"
	ReasonMissingProviderToken        Reason = "MissingProviderToken"
	ReasonBadPath                     Reason = "BadPath"
	ReasonMethodNotAllowed            Reason = "MethodNotAllowed"
	ReasonExpiredToken                Reason = "ExpiredToken"
	ReasonUnregistered                Reason = "Unregistered"
	ReasonPayloadTooLarge             Reason = "PayloadTooLarge"
	ReasonTooManyProviderTokenUpdates Reason = "TooManyProviderTokenUpdates"
	ReasonTooManyRequests             Reason = "TooManyRequests"
	ReasonInternalServerError         Reason = "InternalServerError"
	ReasonServiceUnavailable          Reason = "ServiceUnavailable"
	ReasonShutdown                    Reason = "Shutdown"
)

// Class describes how a caller's retry loop should treat a failed
// request.
type Class int

// Retry classes for APNs error reasons.
const (
	// Retryable failures are transient server conditions; retry with
	// capped exponential backoff, honoring a Retry-After hint.
	Retryable Class = iota
	// Fatal failures concern the device token itself; drop the token
	// and never retry this notification.
	Fatal
	// ConfigError failures indicate a provider misconfiguration that
	// retrying cannot fix; surface immediately.
	ConfigError
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Fatal:
		return "fatal"
	case ConfigError:
		return "config"
	default:
		return "retryable"
	}
}

var reasonClasses = map[Reason]Class{
	// token-related, never retry
	ReasonBadDeviceToken:         Fatal,
	ReasonMissingDeviceToken:     Fatal,
	ReasonDeviceTokenNotForTopic: Fatal,
	ReasonUnregistered:           Fatal,
	// malformed request, never retry
	ReasonBadCollapseID:     Fatal,
	ReasonBadExpirationDate: Fatal,
	ReasonBadMessageID:      Fatal,
	ReasonBadPriority:       Fatal,
	ReasonDuplicateHeaders:  Fatal,
	ReasonInvalidPushType:   Fatal,
	ReasonPayloadEmpty:      Fatal,
	ReasonPayloadTooLarge:   Fatal,
	// provider misconfiguration
	ReasonBadTopic:                  ConfigError,
	ReasonMissingTopic:              ConfigError,
	ReasonTopicDisallowed:           ConfigError,
	ReasonBadCertificate:            ConfigError,
	ReasonBadCertificateEnvironment: ConfigError,
	ReasonForbidden:                 ConfigError,
	ReasonInvalidProviderToken:      ConfigError,
	ReasonMissingProviderToken:      ConfigError,
	ReasonBadPath:                   ConfigError,
	ReasonMethodNotAllowed:          ConfigError,
	// transient
	ReasonExpiredProviderToken:        Retryable,
	ReasonExpiredToken:                Retryable,
	ReasonTooManyProviderTokenUpdates: Retryable,
	ReasonTooManyRequests:             Retryable,
	ReasonIdleTimeout:                 Retryable,
	ReasonInternalServerError:         Retryable,
	ReasonServiceUnavailable:          Retryable,
	ReasonShutdown:                    Retryable,
}

// Class returns the retry classification for the reason. Unknown
// reasons classify as Retryable.
func (r Reason) Class() Class { return reasonClasses[r] }

// IsToken returns true if the reason is associated with the device
// token. Callers usually remove the token from their database on such
// a failure.
func (r Reason) IsToken() bool {
	switch r {
	case ReasonMissingDeviceToken, ReasonBadDeviceToken,
		ReasonDeviceTokenNotForTopic, ReasonUnregistered:
		return true
	}
	return false
}

// Description returns the human readable description from the APNs
// documentation, or an empty string for an unknown reason.
func (r Reason) Description() string { return reasonDescriptions[r] }

var reasonDescriptions = map[Reason]string{
	ReasonBadCollapseID:               "The collapse identifier exceeds the maximum allowed size.",
	ReasonBadDeviceToken:              "The specified device token was bad. Verify that the request contains a valid token and that the token matches the environment.",
	ReasonBadExpirationDate:           "The apns-expiration value is bad.",
	ReasonBadMessageID:                "The apns-id value is bad.",
	ReasonBadPriority:                 "The apns-priority value is bad.",
	ReasonBadTopic:                    "The apns-topic was invalid.",
	ReasonDeviceTokenNotForTopic:      "The device token does not match the specified topic.",
	ReasonDuplicateHeaders:            "One or more headers were repeated.",
	ReasonIdleTimeout:                 "Idle time out.",
	ReasonInvalidPushType:             "The apns-push-type value is invalid.",
	ReasonMissingDeviceToken:          "The device token is not specified in the request :path. Verify that the :path header contains the device token.",
	ReasonMissingTopic:                "The apns-topic header of the request was not specified and was required. The apns-topic header is mandatory when the client is connected using a certificate that supports multiple topics.",
	ReasonPayloadEmpty:                "The message payload was empty.",
	ReasonTopicDisallowed:             "Pushing to this topic is not allowed.",
	ReasonBadCertificate:              "The certificate was bad.",
	ReasonBadCertificateEnvironment:   "The client certificate was for the wrong environment.",
	ReasonExpiredProviderToken:        "The provider token is stale and a new token should be generated.",
	ReasonForbidden:                   "The specified action is not allowed.",
	ReasonInvalidProviderToken:        "The provider token is not valid or the token signature could not be verified.",
	ReasonMissingProviderToken:        "No provider certificate was used to connect to APNs and Authorization header was missing or no provider token was specified.",
	ReasonBadPath:                     "The request contained a bad :path value.",
	ReasonMethodNotAllowed:            "The specified :method was not POST.",
	ReasonExpiredToken:                "The device token has expired.",
	ReasonUnregistered:                "The device token is inactive for the specified topic.",
	ReasonPayloadTooLarge:             "The message payload was too large.",
	ReasonTooManyProviderTokenUpdates: "The provider token is being updated too often.",
	ReasonTooManyRequests:             "Too many requests were made consecutively to the same device token.",
	ReasonInternalServerError:         "An internal server error occurred.",
	ReasonServiceUnavailable:          "The service is unavailable.",
	ReasonShutdown:                    "The server is shutting down.",
}
