// Package envelope renders the {success, data|message} body every API
// response uses.
package envelope

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

// Envelope is the decoded form of a response body, for clients and tests.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Data writes a successful response carrying data. A nil data is rendered
// as null, not omitted.
func Data(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// Created writes a successful response carrying both a confirmation and data.
func Created(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{"success": true, "message": message, "data": data})
}

// Message writes a successful confirmation without data.
func Message(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": true, "message": message})
}

// Fail writes an error response. Failures never carry data.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
