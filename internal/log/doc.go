// Package log sets up the apex/log package logger for the service.
package log
