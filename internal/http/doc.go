// Package http provides HTTP handlers and middleware for the companion API.
//
// The router exposes the following endpoints:
//   - GET /api/calendar/{feedId}: the public iCalendar feed addressed by its
//     unguessable feed id. No identity is required.
//   - GET, POST, PUT, DELETE /api/calendar: the caller's selection document
//     exchanging the `calendarDTO` payload defined in calendar_handler.go.
//     POST provisions the document at most once per attendee.
//   - POST /api/calendar/save: strict save requiring at least one session id.
//   - GET /api/sessions?q= and GET /api/speakers: the catalog, annotated with
//     the caller's selection and conflicts when an identity is present.
//   - POST /api/auth/signin, GET /api/auth/verify, GET and DELETE
//     /api/auth/session: the email link sign-in flow and the `session` cookie.
//   - POST /api/catalog/refresh: reloads the catalog files when the
//     `x-refresh-secret` header matches.
//   - /dashboard...: pages that redirect to `/?redirect=<path>` without a
//     `session` cookie.
//   - GET /metrics and GET /healthz.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
