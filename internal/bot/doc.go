// Package bot implements the Telegram frontend: a long-polling update loop,
// an admin allow-list gate on every update, a declarative command registry for
// router operations, and the MFA challenge flow guarding destructive commands.
package bot
