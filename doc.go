// Package apns implements a provider client for the Apple Push
// Notification service HTTP/2 API.
//
// Apple Push Notification service includes the APNs Provider API that
// allows you to send remote notifications to your app on iOS, tvOS, and
// OS X devices, and to Apple Watch via iOS. This API is based on the
// HTTP/2 network protocol. Each interaction starts with a POST request,
// containing a JSON payload, that you send from your provider server to
// APNs. APNs then forwards the notification to your app on a specific
// user device.
//
// The client supports both authentication modes: a provider certificate
// (loaded from a PKCS#12 container or a PEM pair) presented during the
// TLS handshake, and provider authentication tokens (ES256-signed JWT,
// refreshed automatically before Apple's one-hour validity window
// closes).
//
// Requests are multiplexed over a small pool of long-lived HTTP/2
// connections. Each connection carries the concurrency budget
// negotiated with the server; when all streams are busy the client
// either queues on the least-loaded connection or opens another one,
// depending on configuration. Failed connections are replaced lazily
// with exponential backoff so a degraded endpoint is not hammered.
package apns
