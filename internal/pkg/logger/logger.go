package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category.
type Category string

const (
	CategoryIngest       Category = "ingest"
	CategoryDrive        Category = "drive"
	CategoryCaption      Category = "caption"
	CategoryStore        Category = "store"
	CategoryQueue        Category = "queue"
	CategoryFolderWorker Category = "folder_worker"
	CategoryImageWorker  Category = "image_worker"
	CategorySync         Category = "sync"
	CategorySearch       Category = "search"
	CategoryRecovery     Category = "recovery"
	CategoryAPI          Category = "api"
	CategoryStartup      Category = "startup"
)

// Level represents log level.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Category  Category               `json:"category"`
	Action    string                 `json:"action"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	FolderID  string                 `json:"folder_id,omitempty"`
	ImageID   string                 `json:"image_id,omitempty"`
	Duration  string                 `json:"duration,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger is the main logger struct.
type Logger struct {
	mu       sync.Mutex
	logDir   string
	writers  map[Category]*os.File
	console  bool
	minLevel Level
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger.
func Init(logDir string, console bool) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(logDir, console)
	})
	return err
}

// NewLogger creates a new logger.
func NewLogger(logDir string, console bool) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Logger{
		logDir:   logDir,
		writers:  make(map[Category]*os.File),
		console:  console,
		minLevel: LevelDebug,
	}, nil
}

func (l *Logger) getWriter(category Category) (io.Writer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", category, today)
	path := filepath.Join(l.logDir, filename)

	if writer, exists := l.writers[category]; exists {
		if info, err := writer.Stat(); err == nil {
			if info.Name() == filename {
				return writer, nil
			}
		}
		writer.Close()
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l.writers[category] = file
	return file, nil
}

// Log writes a log entry.
func (l *Logger) Log(entry LogEntry) {
	entry.Timestamp = time.Now()

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Printf("error marshaling log entry: %v\n", err)
		return
	}

	writer, err := l.getWriter(entry.Category)
	if err != nil {
		fmt.Printf("error getting log writer: %v\n", err)
	} else {
		fmt.Fprintln(writer, string(jsonData))
	}

	if l.console {
		l.printToConsole(entry)
	}
}

func (l *Logger) printToConsole(entry LogEntry) {
	timestamp := entry.Timestamp.Format("15:04:05.000")

	levelColors := map[Level]string{
		LevelDebug: "\033[36m",
		LevelInfo:  "\033[32m",
		LevelWarn:  "\033[33m",
		LevelError: "\033[31m",
	}
	reset := "\033[0m"
	color := levelColors[entry.Level]

	fmt.Printf("%s[%s]%s [%s] [%s] %s: %s",
		color, entry.Level, reset, timestamp, entry.Category, entry.Action, entry.Message)

	if entry.FolderID != "" {
		fmt.Printf(" (folder: %s)", entry.FolderID)
	}
	if entry.ImageID != "" {
		fmt.Printf(" (image: %s)", entry.ImageID)
	}
	if entry.Duration != "" {
		fmt.Printf(" (duration: %s)", entry.Duration)
	}
	if entry.Error != "" {
		fmt.Printf(" ERROR: %s", entry.Error)
	}
	fmt.Println()

	if len(entry.Data) > 0 {
		dataJSON, _ := json.MarshalIndent(entry.Data, "    ", "  ")
		fmt.Printf("    Data: %s\n", string(dataJSON))
	}
}

// Close closes all file writers.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.writers {
		writer.Close()
	}
	l.writers = make(map[Category]*os.File)
}

// Default returns the default logger.
func Default() *Logger {
	if defaultLogger == nil {
		Init("logs", true)
	}
	return defaultLogger
}

func logData(category Category, level Level, action, message string, err error, data map[string]interface{}) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	Default().Log(LogEntry{
		Level:    level,
		Category: category,
		Action:   action,
		Message:  message,
		Error:    errStr,
		Data:     data,
	})
}

func Ingest(action, message string, data map[string]interface{}) {
	logData(CategoryIngest, LevelInfo, action, message, nil, data)
}

func IngestError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryIngest, LevelError, action, message, err, data)
}

func Drive(action, message string, data map[string]interface{}) {
	logData(CategoryDrive, LevelInfo, action, message, nil, data)
}

func DriveError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryDrive, LevelError, action, message, err, data)
}

func Caption(action, message string, data map[string]interface{}) {
	logData(CategoryCaption, LevelInfo, action, message, nil, data)
}

func CaptionError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryCaption, LevelError, action, message, err, data)
}

func Store(action, message string, data map[string]interface{}) {
	logData(CategoryStore, LevelDebug, action, message, nil, data)
}

func StoreError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryStore, LevelError, action, message, err, data)
}

func Queue(action, message string, data map[string]interface{}) {
	logData(CategoryQueue, LevelInfo, action, message, nil, data)
}

func QueueError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryQueue, LevelError, action, message, err, data)
}

func FolderWorker(action, message string, data map[string]interface{}) {
	logData(CategoryFolderWorker, LevelInfo, action, message, nil, data)
}

func FolderWorkerError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryFolderWorker, LevelError, action, message, err, data)
}

func ImageWorker(action, message string, data map[string]interface{}) {
	logData(CategoryImageWorker, LevelInfo, action, message, nil, data)
}

func ImageWorkerError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryImageWorker, LevelError, action, message, err, data)
}

func Sync(action, message string, data map[string]interface{}) {
	logData(CategorySync, LevelInfo, action, message, nil, data)
}

func SyncError(action, message string, err error, data map[string]interface{}) {
	logData(CategorySync, LevelError, action, message, err, data)
}

func Search(action, message string, data map[string]interface{}) {
	logData(CategorySearch, LevelInfo, action, message, nil, data)
}

func SearchError(action, message string, err error, data map[string]interface{}) {
	logData(CategorySearch, LevelError, action, message, err, data)
}

func Recovery(action, message string, data map[string]interface{}) {
	logData(CategoryRecovery, LevelInfo, action, message, nil, data)
}

func RecoveryError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryRecovery, LevelError, action, message, err, data)
}

func API(action, message string, data map[string]interface{}) {
	logData(CategoryAPI, LevelInfo, action, message, nil, data)
}

// Info logs an info-level message in an arbitrary category.
func Info(category Category, action, message string, data map[string]interface{}) {
	logData(category, LevelInfo, action, message, nil, data)
}

// Error logs an error-level message in an arbitrary category.
func Error(category Category, action, message string, err error, data map[string]interface{}) {
	logData(category, LevelError, action, message, err, data)
}

// Debug logs a debug-level message in an arbitrary category.
func Debug(category Category, action, message string, data map[string]interface{}) {
	logData(category, LevelDebug, action, message, nil, data)
}

// Warn logs a warn-level message in an arbitrary category.
func Warn(category Category, action, message string, data map[string]interface{}) {
	logData(category, LevelWarn, action, message, nil, data)
}

func Startup(action, message string, data map[string]interface{}) {
	logData(CategoryStartup, LevelInfo, action, message, nil, data)
}

func StartupError(action, message string, err error, data map[string]interface{}) {
	logData(CategoryStartup, LevelError, action, message, err, data)
}

func StartupWarn(action, message string, data map[string]interface{}) {
	logData(CategoryStartup, LevelWarn, action, message, nil, data)
}

// ReadLogsOptions options for reading logs.
type ReadLogsOptions struct {
	Category Category
	Level    Level
	Lines    int
	Search   string
}

func ReadLogs(opts ReadLogsOptions) ([]LogEntry, error) {
	return Default().ReadLogs(opts)
}

func (l *Logger) ReadLogs(opts ReadLogsOptions) ([]LogEntry, error) {
	if opts.Lines <= 0 {
		opts.Lines = 100
	}
	if opts.Lines > 1000 {
		opts.Lines = 1000
	}

	var entries []LogEntry
	today := time.Now().Format("2006-01-02")

	categories := []Category{
		CategoryIngest, CategoryDrive, CategoryCaption, CategoryStore, CategoryQueue,
		CategoryFolderWorker, CategoryImageWorker, CategorySync, CategorySearch,
		CategoryRecovery, CategoryAPI, CategoryStartup,
	}
	if opts.Category != "" {
		categories = []Category{opts.Category}
	}

	for _, cat := range categories {
		filename := fmt.Sprintf("%s_%s.log", cat, today)
		path := filepath.Join(l.logDir, filename)

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		for _, line := range splitLines(string(data)) {
			if line == "" {
				continue
			}
			var entry LogEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				continue
			}
			if opts.Level != "" && entry.Level != opts.Level {
				continue
			}
			if opts.Search != "" {
				if !containsIgnoreCase(entry.Message, opts.Search) &&
					!containsIgnoreCase(entry.Action, opts.Search) &&
					!containsIgnoreCase(entry.Error, opts.Search) {
					continue
				}
			}
			entries = append(entries, entry)
		}
	}

	sortEntriesByTime(entries)

	if len(entries) > opts.Lines {
		entries = entries[:opts.Lines]
	}

	return entries, nil
}

func GetLogDir() string {
	return Default().logDir
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func containsIgnoreCase(s, substr string) bool {
	return contains(toLower(s), toLower(substr))
}

func toLower(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func sortEntriesByTime(entries []LogEntry) {
	n := len(entries)
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-i-1; j++ {
			if entries[j].Timestamp.Before(entries[j+1].Timestamp) {
				entries[j], entries[j+1] = entries[j+1], entries[j]
			}
		}
	}
}
