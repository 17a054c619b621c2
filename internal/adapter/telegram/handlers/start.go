package handlers

import (
	"fmt"
	"strings"

	"confirmbot/internal/command"
)

// Start is the /start greeting listing the available commands.
func Start(s *command.Surface) string {
	var sb strings.Builder
	sb.WriteString("Hi! I remind the list members to confirm their activity.\n\n")
	for _, spec := range s.Specs() {
		fmt.Fprintf(&sb, "/%s - %s\n", spec.Name, spec.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}
