package inputs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInstructorMode(t *testing.T) {
	env := Parse(map[string]string{
		TrainingUsersInput: "alice@corp.io;bob@corp.io; carol@corp.io ",
		DiagnosticsInput:   "Off",
	})

	assert.True(t, env.InstructorMode)
	assert.Equal(t, []string{"alice@corp.io", "bob@corp.io", "carol@corp.io"}, env.Users)
	assert.False(t, env.DebugEnabled)
}

func TestParseStudentMode(t *testing.T) {
	env := Parse(map[string]string{
		TrainingUsersInput: "alice@corp.io#2",
	})

	assert.False(t, env.InstructorMode)
	assert.Equal(t, "alice@corp.io", env.StudentUser)
	assert.Equal(t, "2", env.StudentID)
}

func TestParseDiagnosticsOn(t *testing.T) {
	env := Parse(map[string]string{DiagnosticsInput: "On"})
	assert.True(t, env.DebugEnabled)

	env = Parse(map[string]string{DiagnosticsInput: "on"})
	assert.False(t, env.DebugEnabled, "flag value is the literal \"On\"")
}

func TestParseEmptyRoster(t *testing.T) {
	env := Parse(map[string]string{TrainingUsersInput: ""})
	assert.True(t, env.InstructorMode)
	assert.Empty(t, env.Users)
}
