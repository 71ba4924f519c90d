package model

import "time"

// ConsumerDescriptor is the optional consumer block middleware attaches to a
// request record. Identifier is the only required field; the rest is display
// metadata applied when the consumer is first seen.
type ConsumerDescriptor struct {
	Identifier string `json:"identifier" validate:"required,max=255"`
	Name       string `json:"name,omitempty" validate:"max=255"`
	GroupID    *int64 `json:"groupId,omitempty"`
	Hidden     *bool  `json:"hidden,omitempty"`
}

// ExceptionInfo carries an unhandled exception captured by middleware.
type ExceptionInfo struct {
	Type       string `json:"type" validate:"required,max=255"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}

// RawRequestRecord is one observed HTTP transaction as reported by client
// middleware. RequestUUID is client-generated and globally unique; duplicate
// submissions are rejected by the store, not overwritten.
type RawRequestRecord struct {
	RequestUUID     string              `json:"requestUuid" validate:"required,uuid"`
	Method          string              `json:"method" validate:"required,max=10"`
	Path            string              `json:"path" validate:"required,max=2048"`
	URL             string              `json:"url" validate:"required,max=4096"`
	StatusCode      int                 `json:"statusCode" validate:"gte=100,lte=599"`
	ResponseTime    int                 `json:"responseTime" validate:"gte=0"`
	RequestSize     int64               `json:"requestSize" validate:"gte=0"`
	ResponseSize    int64               `json:"responseSize" validate:"gte=0"`
	RequestHeaders  map[string]string   `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string   `json:"responseHeaders,omitempty"`
	RequestBody     string              `json:"requestBody,omitempty"`
	ResponseBody    string              `json:"responseBody,omitempty"`
	ClientIP        string              `json:"clientIp,omitempty" validate:"omitempty,ip"`
	Consumer        *ConsumerDescriptor `json:"consumer,omitempty"`
	Exception       *ExceptionInfo      `json:"exception,omitempty"`
	Timestamp       time.Time           `json:"timestamp" validate:"required"`
}

// RawApplicationLogRecord is one log line emitted while an app processed a
// request, linked to its request by RequestUUID.
type RawApplicationLogRecord struct {
	RequestUUID string    `json:"requestUuid" validate:"required,uuid"`
	Message     string    `json:"message" validate:"required"`
	Level       string    `json:"level,omitempty" validate:"max=32"`
	Logger      string    `json:"logger,omitempty" validate:"max=255"`
	File        string    `json:"file,omitempty" validate:"max=1024"`
	Line        int       `json:"line,omitempty" validate:"gte=0"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
}
