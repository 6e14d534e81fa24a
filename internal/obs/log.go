package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// LogError emits a structured failure entry. Callers log the error class and
// operation before returning a failure result; driver text stays out of
// client-facing responses and lives only here.
func LogError(op string, err error, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "error",
		"op":    op,
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	for k, v := range fields {
		entry[k] = v
	}
	LogRequest(entry)
}
