// Package logging configures the process-wide slog logger.
//
// # Overview
//
// Components log through slog.Default(). This package builds the handler
// behind it:
//   - JSON or text output
//   - a level that can be changed at runtime
//   - credential redaction (passwords, bearer tokens, bot tokens)
//   - sweep_id, panel_id and request_id attributes taken from the context
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Redact: true,
//	})
//	if err != nil {
//	    return err
//	}
//	logger.Install()
//
//	ctx = logging.WithSweepID(ctx, sweepID)
//	slog.InfoContext(ctx, "sweep started") // includes sweep_id
//
// # Redaction
//
// Values of sensitive keys are replaced entirely:
//
//   - password, new_password, original_password → ***
//   - token, api_token, bot_token, authorization → ***
//
// String values are also scanned, so "Bearer eyJ..." becomes "Bearer ***"
// and a bot URL ".../bot123:AA.../sendMessage" loses its token.
package logging
