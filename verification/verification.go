// Package verification talks to the speaker verification service
package verification

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Defaults
const (
	DefaultAddr    = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// EnvAddr is the environment variable overriding the service address
const EnvAddr = "ASTIVOICE_SERVICE_ADDR"

// Messages surfaced when the service doesn't provide one
const (
	MessageError       = "Request failed"
	MessageSuccess     = "Request succeeded"
	MessageUnreachable = "Verification service unreachable"
)

// Operation is an operation of the service
type Operation string

// Operations
const (
	OperationRegister Operation = "register"
	OperationVerify   Operation = "verify"
)

// ParseOperation parses an operation
func ParseOperation(s string) (o Operation, err error) {
	switch o = Operation(strings.ToLower(strings.TrimSpace(s))); o {
	case OperationRegister, OperationVerify:
	default:
		err = errors.Errorf("verification: unknown operation %s", s)
	}
	return
}

// Options represents client options
type Options struct {
	Addr    string        `toml:"addr"`
	Timeout time.Duration `toml:"timeout"`
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = os.Getenv(EnvAddr)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	o.Addr = strings.TrimRight(o.Addr, "/")
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// Outcome is the decoded result of a successful submission
type Outcome struct {
	Message   string
	Score     *float64
	Status    string
	Threshold *float64
	UserID    string
}
