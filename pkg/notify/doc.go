// Package notify delivers engine events to panel owners and operators.
//
// A Dispatcher implements panels.Notifier on top of delivery Channels:
//
//   - Telegram: Bot API sendMessage, addressed by chat id
//   - Email: SMTP to a fixed operator mailbox list
//   - Log: structured log line per message, always on
//
// Owners are reached through owner channels using their chat id. Operator
// messages go to every operator channel; chat-addressed channels send one
// message per configured operator id.
//
// Delivery is fire-and-forget. Each channel failure is logged and counted,
// and other channels still receive the message. Nothing is returned to the
// caller.
package notify
