// Package slug derives normalized, callback-safe identifiers from device
// display names. Telegram callback data embeds these slugs, so they must stay
// short and stick to lowercase ASCII letters, digits, and the separator.
package slug
