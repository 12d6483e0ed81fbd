package logger

import (
	"fmt"
	"log"
	"os"
)

type Logger struct {
	info        *log.Logger
	warning     *log.Logger
	errorLogger *log.Logger
	file        *os.File
	active      bool
}

var FSRecoverlogger Logger

func InitializeLogger(active bool, logfilename string) error {
	if !active {
		FSRecoverlogger = Logger{active: active}
		return nil
	}

	file, err := os.OpenFile(logfilename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logfilename, err)
	}

	info := log.New(file, "FSRecover|INFO: ", log.Ldate|log.Ltime)
	warning := log.New(file, "FSRecover|WARNING: ", log.Ldate|log.Ltime)
	errorLogger := log.New(file, "FSRecover|ERROR: ", log.Ldate|log.Ltime)
	FSRecoverlogger = Logger{info: info, warning: warning, errorLogger: errorLogger,
		file: file, active: active}
	return nil
}

// Close releases the log file handle.
func (logger Logger) Close() {
	if logger.file != nil {
		logger.file.Close()
	}
}

func (logger Logger) Info(msg string) {
	if logger.active {
		logger.info.Println(msg)
	}
}

func (logger Logger) Error(msg any) {
	if logger.active {
		logger.errorLogger.Println(msg)
	}
}

func (logger Logger) Warning(msg string) {
	if logger.active {
		logger.warning.Println(msg)
	}
}
