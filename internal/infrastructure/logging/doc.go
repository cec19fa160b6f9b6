// Package logging builds the zap loggers for the termdeck server and the
// display client.
//
// Production entries are JSON, development entries are colored console
// lines. The client logs to a file or nowhere because the controlling
// terminal is in raw mode and owns stdout.
//
//	logger, err := logging.New(logging.Config{Level: "info", Service: "termdeck-server"})
//	logger.Info("Session created", zap.String("session_id", id))
package logging
