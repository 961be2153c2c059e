package hostinterface

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cornerculling/extension/internal/dispatcher"
)

// ErrNoDispatcher is returned for commands received before initialization finished
var ErrNoDispatcher = errors.New("no dispatcher registered")

// handleCommand routes "<COMMAND>|arg|arg" through the dispatcher and
// formats the response for the host
func (c *configStruct) handleCommand(input string) string {
	parts := strings.Split(input, "|")
	command := strings.TrimSpace(parts[0])

	if c.dispatcher == nil {
		return formatDispatchResponse(command, nil, ErrNoDispatcher)
	}

	result, err := c.dispatcher.Dispatch(dispatcher.Command{
		Name:     command,
		Args:     parts[1:],
		Received: time.Now(),
	})
	return formatDispatchResponse(command, result, err)
}

// formatDispatchResponse formats the dispatcher result for the host.
// Strings are quoted, anything else is embedded as JSON.
func formatDispatchResponse(command string, result any, err error) string {
	if err != nil {
		return fmt.Sprintf(`["error", %q, %q]`, command, err.Error())
	}
	if result == nil {
		return fmt.Sprintf(`["ok", %q]`, command)
	}
	if s, ok := result.(string); ok {
		return fmt.Sprintf(`["ok", %q, %q]`, command, s)
	}
	data, jerr := json.Marshal(result)
	if jerr != nil {
		return fmt.Sprintf(`["error", %q, %q]`, command, jerr.Error())
	}
	return fmt.Sprintf(`["ok", %q, %s]`, command, data)
}
