// Package logging provides structured logging for Flowline.
//
// It wraps log/slog: JSON output in production, text output for local
// development, and default service/version fields on every entry. With
// output "file" entries go to a size-rotated file managed by lumberjack.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "./logs/flowline.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 28      # days
//	    compress: true
//
// *Logger satisfies the small Logger interfaces declared by the domain
// packages, so it can be passed straight into automation.NewEngine and
// friends. Never log secrets or webhook URLs carrying tokens.
package logging
