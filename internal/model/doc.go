// Package model defines shared data types used across the fundsync core.
//
// Conventions:
//   - Money: decimal amounts paired with an ISO 4217 currency code
//   - Timestamps: time.Time in UTC, zero when the backend omitted them
//   - IDs: opaque strings as issued by the backend
package model
