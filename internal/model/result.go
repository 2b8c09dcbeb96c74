package model

import "strings"

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

func (s ResultStatus) String() string { return string(s) }

const (
	MsgSent          = "SMS sent successfully"
	MsgMaxRetries    = "Max retries exceeded"
	queueErrorPrefix = "Queue error: "
)

// SendResult is the outcome of one send. It is never mutated after being handed to a caller.
type SendResult struct {
	Status      ResultStatus `json:"status"`
	Message     string       `json:"message"`
	ElapsedTime float64      `json:"elapsed_time,omitempty"` // seconds
}

func (r SendResult) OK() bool { return r.Status == ResultSuccess }

func Success() SendResult {
	return SendResult{Status: ResultSuccess, Message: MsgSent}
}

func Failure(msg string) SendResult {
	return SendResult{Status: ResultError, Message: msg}
}

// QueueFault reports whether the send never reached the device session.
func (r SendResult) QueueFault() bool {
	return r.Status == ResultError && strings.HasPrefix(r.Message, queueErrorPrefix)
}

// QueueError reports a fault in the coordinator itself rather than in the device interaction.
func QueueError(cause error) SendResult {
	return Failure(queueErrorPrefix + cause.Error())
}
