package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	simple, sensitive := simpleCommands(), sensitiveCommands()

	t.Run("covers all router queries", func(t *testing.T) {
		t.Parallel()
		var names []string
		for _, cmd := range simple {
			names = append(names, cmd.name)
			assert.NotNil(t, cmd.fetch, cmd.name)
			assert.NotEmpty(t, cmd.description, cmd.name)
		}
		assert.ElementsMatch(t,
			[]string{"status", "interfaces", "leases", "logs", "services_enabled", "updates"},
			names)
	})

	t.Run("destructive operations are sensitive", func(t *testing.T) {
		t.Parallel()
		var names []string
		for _, cmd := range sensitive {
			names = append(names, cmd.name)
			assert.NotNil(t, cmd.execute, cmd.name)
			assert.NotNil(t, cmd.confirm, cmd.name)
			assert.Contains(t, cmd.success("gw"), "gw", cmd.name)
		}
		assert.ElementsMatch(t, []string{"reboot", "upgrade"}, names)
	})

	t.Run("confirmation texts name the device", func(t *testing.T) {
		t.Parallel()
		for _, cmd := range sensitive {
			assert.Contains(t, cmd.confirm("Main Router"), "Main Router")
			assert.Contains(t, cmd.confirm("Main Router"), "Are you sure?")
		}
	})
}

func TestHelpText(t *testing.T) {
	t.Parallel()

	help := helpText(simpleCommands(), sensitiveCommands())

	assert.Contains(t, help, "*MikroTik Management Bot*")
	assert.Contains(t, help, "/status - System resource status")
	assert.Contains(t, help, `/services\_enabled`)
	assert.Contains(t, help, "/reboot - Reboot the router 🔐")
	assert.Contains(t, help, "/upgrade - Install RouterOS updates 🔐")
	assert.Contains(t, help, `/mfa\_status`)
	assert.Contains(t, help, "/help")
}
