package pipeline

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// errorLog appends region failures to a plain-text file in the workspace so
// operators can review what went wrong without querying the ledger. The
// file is append-only across runs.
type errorLog struct {
	mu   sync.Mutex
	path string
}

func newErrorLog(path string) *errorLog {
	return &errorLog{path: path}
}

func (l *errorLog) Append(ref string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("%s %s: %v\n", time.Now().UTC().Format(time.RFC3339), ref, cause)
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}
