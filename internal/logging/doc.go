// Package logging configures log/slog for glcapture with one logger per
// module and per-module levels that can change while a session streams.
//
// Every record goes to up to three places:
//   - stdout as text or JSON, unless stdout is /dev/null;
//   - the systemd journal, when journald is listening;
//   - an in-memory history that CAPTURE_WEB replays on /api/logs.
//
// Call Initialize once after flags and the config file are loaded, then ask
// for loggers by module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"capture": "debug"},
//	})
//	logger := logging.GetLogger("capture")
//	logger.Debug("Dequeued buffer", "index", 2, "sequence", 118)
//
// Loggers may be requested before Initialize; they start at info and pick up
// the configured level and format once Initialize runs. UpdateLevels changes
// levels in place and is what the config file watcher calls.
//
// Journal fields are the uppercased attribute names with groups joined by
// underscores, so a session can be followed with:
//
//	journalctl -t glcapture MODULE=capture SESSION_ID=<id> -f
//
// The matching TOML:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	capture = "debug"
//	web = "warn"
package logging
