// Package inputs interprets the launch parameters of a training
// reservation: the "Training Users" roster and the Diagnostics switch.
package inputs

import "strings"

// Global input names on the training blueprint.
const (
	TrainingUsersInput = "Training Users"
	DiagnosticsInput   = "Diagnostics"
)

// studentMarker inside the first roster segment flags a spawned trainee
// sandbox re-entering its own setup, as "user#numericID".
const studentMarker = "#"

// Environment is the parsed launch configuration of a reservation.
type Environment struct {
	// Users is the ordered trainee roster. Order matters: a trainee's
	// 1-based position seeds all address and naming offsets.
	Users []string

	// InstructorMode is true for the blueprint-owning reservation and
	// false for a spawned trainee sandbox.
	InstructorMode bool

	// StudentUser and StudentID are set only in student mode.
	StudentUser string
	StudentID   string

	// DebugEnabled turns verbose reservation output on.
	DebugEnabled bool
}

// Parse reads an Environment out of the reservation's global inputs.
func Parse(globalInputs map[string]string) Environment {
	env := Environment{
		InstructorMode: true,
		DebugEnabled:   globalInputs[DiagnosticsInput] == "On",
	}

	roster := globalInputs[TrainingUsersInput]
	for _, segment := range strings.Split(roster, ";") {
		segment = strings.TrimSpace(segment)
		if segment != "" {
			env.Users = append(env.Users, segment)
		}
	}

	if len(env.Users) > 0 && strings.Contains(env.Users[0], studentMarker) {
		env.InstructorMode = false
		parts := strings.SplitN(env.Users[0], studentMarker, 2)
		env.StudentUser = parts[0]
		env.StudentID = parts[1]
	}

	return env
}
