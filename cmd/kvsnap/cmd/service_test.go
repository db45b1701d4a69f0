package cmd

import (
	"strings"
	"testing"

	"github.com/ssargent/kvsnap/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestRenderSystemdUnit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dir = "/var/lib/kvsnap"

	unit := renderSystemdUnit(cfg, "/etc/kvsnap/config.yaml", "kvsnap", "/usr/local/bin/kvsnap")

	assert.Contains(t, unit, "User=kvsnap")
	assert.Contains(t, unit, "Group=kvsnap")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/kvsnap serve --config /etc/kvsnap/config.yaml")
	assert.Contains(t, unit, "KillSignal=SIGTERM")
	assert.Contains(t, unit, "ReadWritePaths=/var/lib/kvsnap\n")
	assert.Contains(t, unit, "ReadWritePaths=/etc/kvsnap\n")
	assert.True(t, strings.HasSuffix(unit, "WantedBy=multi-user.target\n"))

	cfg.Snapshot.ArchiveDir = "/srv/archive"
	unit = renderSystemdUnit(cfg, "/etc/kvsnap/config.yaml", "kvsnap", "/usr/local/bin/kvsnap")
	assert.Contains(t, unit, "ReadWritePaths=/srv/archive\n")
}

func TestJournalArgs(t *testing.T) {
	assert.Equal(t, []string{"-u", "kvsnap.service"}, journalArgs(false, 0))
	assert.Equal(t, []string{"-u", "kvsnap.service", "-f", "-n50"}, journalArgs(true, 50))
}
