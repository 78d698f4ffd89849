// Package dedupe provides a time-windowed cache used to decline repeated
// chat sends of the same text by the same user to the same convoy.
package dedupe
