package jsruntime

import (
	"log/slog"
	"strings"
)

// ConsoleLevel is the console method a line was written with.
type ConsoleLevel string

const (
	ConsoleLog   ConsoleLevel = "log"
	ConsoleError ConsoleLevel = "error"
)

// ConsoleFunc receives one formatted console line.
type ConsoleFunc func(level ConsoleLevel, line string)

const consoleHostFunc = "__jshost_console"

// consoleShim installs console on the global object. Arguments are stringified
// inside the engine so every binding shares the same formatting; an argument
// whose conversion throws falls back to its Object.prototype.toString tag.
const consoleShim = `(function(g){
  var write = g.__jshost_console;
  function str(a) {
    try { return String(a); } catch (e) {}
    try { return Object.prototype.toString.call(a); } catch (e) {}
    return "[unprintable]";
  }
  function emit(level) {
    return function() {
      var parts = [];
      for (var i = 0; i < arguments.length; i++) parts.push(str(arguments[i]));
      try { write(level, parts.join(" ")); } catch (e) {}
    };
  }
  g.console = {
    log: emit("log"),
    info: emit("log"),
    debug: emit("log"),
    warn: emit("error"),
    error: emit("error")
  };
})(globalThis);`

// FormatConsoleArgs joins argument string forms with single spaces, in order.
func FormatConsoleArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// consoleHandler adapts a ConsoleFunc to the host function the shim calls.
// It never returns an error: console output must not fail the caller.
func consoleHandler(sink ConsoleFunc, logger *slog.Logger) HostFunc {
	return func(args []Value) (ret Value, err error) {
		ret = Undefined()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("console sink panicked", "panic", r)
				err = nil
			}
		}()
		level := ConsoleLog
		var line string
		if len(args) > 0 {
			if s, ok := args[0].AsString(); ok && ConsoleLevel(s) == ConsoleError {
				level = ConsoleError
			}
		}
		if len(args) > 1 {
			if s, ok := args[1].AsString(); ok {
				line = s
			} else {
				line = FormatConsoleArgs(args[1:])
			}
		}
		sink(level, line)
		return ret, nil
	}
}

// LogConsole returns a ConsoleFunc that writes lines to logger, the way the
// host logs console output when no other sink is configured.
func LogConsole(logger *slog.Logger) ConsoleFunc {
	return func(level ConsoleLevel, line string) {
		if level == ConsoleError {
			logger.Error("[console.error] " + line)
			return
		}
		logger.Info("[console.log] " + line)
	}
}
